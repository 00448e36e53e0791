package tags

import "github.com/pkg/errors"

// RosParamCommand selects the <rosparam> operation, defaulting to "load".
type RosParamCommand string

const (
	RosParamLoad   RosParamCommand = "load"
	RosParamDump   RosParamCommand = "dump"
	RosParamDelete RosParamCommand = "delete"
)

// RosParam is <rosparam command="load|dump|delete" param="..." file="..."
// subst_value="true|false">inline yaml</rosparam>. File loading, inline YAML
// parsing and the load/delete registry calls are performed by
// internal/bootstrap when parameters are applied (a dump is logged there
// and not performed); this struct only records and validates the
// declaration itself.
type RosParam struct {
	Command     RosParamCommand
	Param       string
	File        string
	HasFile     bool
	SubstValue  bool
	InlineYAML  string
}

var rosparamKnownAttrs = withGating("command", "param", "file", "subst_value", "ns")

func ParseRosParam(file string, attrs Attrs, inlineYAML string) (*RosParam, []Warning, error) {
	warnings := checkUnknown(file, "rosparam", attrs, rosparamKnownAttrs)

	cmd := RosParamCommand(attrs["command"])
	if cmd == "" {
		cmd = RosParamLoad
	}
	switch cmd {
	case RosParamLoad, RosParamDump, RosParamDelete:
	default:
		return nil, warnings, errors.Errorf("<rosparam>: unknown command %q", cmd)
	}

	substValue, err := ParseOptionalBool(attrs["subst_value"], false)
	if err != nil {
		return nil, warnings, errors.Wrap(err, "<rosparam subst_value=...>")
	}

	fileAttr, hasFile := attrs["file"]

	r := &RosParam{
		Command:    cmd,
		Param:      attrs["param"],
		File:       fileAttr,
		HasFile:    hasFile,
		SubstValue: substValue,
		InlineYAML: inlineYAML,
	}

	switch cmd {
	case RosParamDelete:
		if r.Param == "" {
			return nil, warnings, errors.New("<rosparam command=\"delete\"> requires a 'param' attribute")
		}
		if hasFile {
			return nil, warnings, errors.New("<rosparam command=\"delete\"> does not accept a 'file' attribute")
		}
	case RosParamDump:
		if !hasFile {
			return nil, warnings, errors.New("<rosparam command=\"dump\"> requires a 'file' attribute")
		}
	case RosParamLoad:
		if !hasFile && inlineYAML == "" {
			return nil, warnings, errors.New("<rosparam command=\"load\"> requires a 'file' attribute or inline YAML body")
		}
	}
	return r, warnings, nil
}
