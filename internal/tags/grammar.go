package tags

// allowedChildren enumerates.2's "child grammar"
// requirement, which child tag names are permitted under each parent tag.
// <node> and <test> share a child set; <group> and <launch> both accept
// the full executable-content set plus nested <group>/<include>.
var allowedChildren = map[string]map[string]bool{
	"launch": attrSet("arg", "env", "remap", "param", "rosparam", "machine", "node", "test", "include", "group"),
	"group":  attrSet("arg", "env", "remap", "param", "rosparam", "machine", "node", "test", "include", "group"),
	"node":   attrSet("env", "remap", "param", "rosparam"),
	"test":   attrSet("env", "remap", "param", "rosparam"),
	"include": attrSet("arg", "env"),
	"machine": nil,
	"arg":     nil,
	"env":     nil,
	"remap":   nil,
	"param":   nil,
	"rosparam": nil,
}

// AllowsChild reports whether childTag may appear directly inside parentTag.
// Tags absent from allowedChildren (or mapped to a nil set) accept no
// children at all.
func AllowsChild(parentTag, childTag string) bool {
	set, ok := allowedChildren[parentTag]
	if !ok || set == nil {
		return false
	}
	return set[childTag]
}
