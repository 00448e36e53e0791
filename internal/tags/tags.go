// Package tags implements one struct per launch-file element (<arg>,
// <env>, <remap>, <param>, <rosparam>, <machine>, <node>, <test>,
// <include>, <group>, <launch>), each enforcing its own attribute set and
// reporting enabledness from its `if`/`unless` attributes. Tags only
// validate and type-check already substituted attribute text; they
// perform no substitution and no filesystem or network I/O themselves
// (that is the launch-file compiler's job in internal/compile).
//
// Each tag enforces its own fixed attribute vocabulary; attributes outside
// it are reported as warnings. Splitting "name:=value" command-line
// bindings into remap/param/special buckets is done by
// names.ProcessArguments, not here.
package tags

import (
	"strings"

	"github.com/pkg/errors"
)

// Attrs is the resolved (post-substitution) attribute set of one XML
// element: name -> value.
type Attrs map[string]string

// Warning is a non-fatal tag-model diagnostic: an unrecognized attribute on
// a known tag, tagged with the offending file and tag name.
type Warning struct {
	File string
	Tag  string
	Attr string
}

func (w Warning) String() string {
	return w.File + ": unknown attribute '" + w.Attr + "' on <" + w.Tag + ">"
}

// checkUnknown returns a Warning for every attribute of attrs not present in
// known, tagged with file and tagName.
func checkUnknown(file, tagName string, attrs Attrs, known map[string]bool) []Warning {
	var warnings []Warning
	for name := range attrs {
		if !known[name] {
			warnings = append(warnings, Warning{File: file, Tag: tagName, Attr: name})
		}
	}
	return warnings
}

func attrSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// ParseBool parses the exact (case-insensitively accepted, then normalized)
// tokens "true"/"false" required by boolean XML attributes.
// An empty string is an error unless the caller has already special-cased
// "attribute absent".
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, errors.Errorf("expected boolean 'true' or 'false', got %q", s)
	}
}

// ParseOptionalBool is like ParseBool but returns def when s is empty.
func ParseOptionalBool(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return ParseBool(s)
}

// Enabled evaluates the `if`/`unless` gating attributes shared by every
// tag: both absent means enabled; exactly one of them set decides; both
// set simultaneously is a parse error.
func Enabled(attrs Attrs) (bool, error) {
	ifVal, hasIf := attrs["if"]
	unlessVal, hasUnless := attrs["unless"]

	if hasIf && hasUnless {
		return false, errors.New("tag has both 'if' and 'unless' attributes")
	}
	if hasIf {
		b, err := ParseBool(ifVal)
		if err != nil {
			return false, errors.Wrap(err, "'if' attribute")
		}
		return b, nil
	}
	if hasUnless {
		b, err := ParseBool(unlessVal)
		if err != nil {
			return false, errors.Wrap(err, "'unless' attribute")
		}
		return !b, nil
	}
	return true, nil
}

// gatingAttrs are recognized on every tag and never trigger an "unknown
// attribute" warning on their own.
var gatingAttrs = attrSet("if", "unless")

func withGating(names ...string) map[string]bool {
	set := attrSet(names...)
	for k := range gatingAttrs {
		set[k] = true
	}
	return set
}

func requireNonEmpty(attrs Attrs, name, tagName string) (string, error) {
	v, ok := attrs[name]
	if !ok || v == "" {
		return "", errors.Errorf("<%s> requires a non-empty '%s' attribute", tagName, name)
	}
	return v, nil
}
