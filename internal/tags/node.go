package tags

import (
	"strings"

	"github.com/pkg/errors"
)

// Output selects where a node's stdout/stderr are routed.
type Output string

const (
	OutputLog    Output = "log"
	OutputScreen Output = "screen"
)

// Node is <node pkg="..." type="..." name="..." .../>. Its <env>/<remap>/
// <param>/<rosparam> children are collected separately by the launch-file compiler
// since their scoping rules require walking the document in order.
type Node struct {
	Pkg           string
	Type          string
	Name          string
	Namespace     string
	Args          string
	Machine       string
	HasMachine    bool
	Respawn       bool
	RespawnDelay  float64
	Required      bool
	Output        Output
	CWD           string
	LaunchPrefix  string
	ClearParams   bool
}

var nodeKnownAttrs = withGating(
	"pkg", "type", "name", "ns", "args", "machine", "respawn", "respawn_delay",
	"required", "output", "cwd", "launch-prefix", "clear_params",
)

func ParseNode(file string, attrs Attrs) (*Node, []Warning, error) {
	warnings := checkUnknown(file, "node", attrs, nodeKnownAttrs)

	pkg, err := requireNonEmpty(attrs, "pkg", "node")
	if err != nil {
		return nil, warnings, err
	}
	typ, err := requireNonEmpty(attrs, "type", "node")
	if err != nil {
		return nil, warnings, err
	}
	name, err := requireNonEmpty(attrs, "name", "node")
	if err != nil {
		return nil, warnings, err
	}
	if strings.Contains(name, "/") {
		return nil, warnings, errors.Errorf("<node name=%q>: name may not contain a slash", name)
	}

	respawn, err := ParseOptionalBool(attrs["respawn"], false)
	if err != nil {
		return nil, warnings, errors.Wrapf(err, "<node name=%q respawn=...>", name)
	}
	required, err := ParseOptionalBool(attrs["required"], false)
	if err != nil {
		return nil, warnings, errors.Wrapf(err, "<node name=%q required=...>", name)
	}
	if respawn && required {
		return nil, warnings, errors.Errorf("<node name=%q>: 'respawn' and 'required' are mutually exclusive", name)
	}
	clearParams, err := ParseOptionalBool(attrs["clear_params"], false)
	if err != nil {
		return nil, warnings, errors.Wrapf(err, "<node name=%q clear_params=...>", name)
	}

	respawnDelay := 0.0
	if v, ok := attrs["respawn_delay"]; ok {
		d, derr := parseFloatAttr(v)
		if derr != nil {
			return nil, warnings, errors.Wrapf(derr, "<node name=%q respawn_delay=...>", name)
		}
		respawnDelay = d
	}

	output := OutputLog
	if v, ok := attrs["output"]; ok {
		switch Output(v) {
		case OutputLog, OutputScreen:
			output = Output(v)
		default:
			return nil, warnings, errors.Errorf("<node name=%q output=%q>: expected 'log' or 'screen'", name, v)
		}
	}

	machine, hasMachine := attrs["machine"]

	return &Node{
		Pkg:          pkg,
		Type:         typ,
		Name:         name,
		Namespace:    attrs["ns"],
		Args:         attrs["args"],
		Machine:      machine,
		HasMachine:   hasMachine,
		Respawn:      respawn,
		RespawnDelay: respawnDelay,
		Required:     required,
		Output:       output,
		CWD:          attrs["cwd"],
		LaunchPrefix: attrs["launch-prefix"],
		ClearParams:  clearParams,
	}, warnings, nil
}
