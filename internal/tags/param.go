package tags

import (
	"strconv"

	"github.com/pkg/errors"
)

// ParamType is the declared type of a <param> value, defaulting to "str".
type ParamType string

const (
	ParamTypeAuto   ParamType = "auto"
	ParamTypeStr    ParamType = "str"
	ParamTypeInt    ParamType = "int"
	ParamTypeDouble ParamType = "double"
	ParamTypeBool   ParamType = "bool"
	ParamTypeYAML   ParamType = "yaml"
)

// ParamSource tags which attribute supplied the raw text of a Param.
type ParamSource int

const (
	ParamSourceValue ParamSource = iota
	ParamSourceTextFile
	ParamSourceBinFile
	ParamSourceCommand
)

// Param is <param name="..." value="..." type="..."/> and its textfile /
// binfile / command variants. Only ParamSourceValue is typed and validated
// here; textfile/binfile/command resolution requires filesystem or
// subprocess I/O and is performed by internal/bootstrap when parameters are
// applied.
type Param struct {
	Name   string
	Type   ParamType
	Source ParamSource
	Raw    string // the un-interpreted attribute text for the active Source

	// Typed, populated only when Source == ParamSourceValue.
	StrValue    string
	IntValue    int64
	DoubleValue float64
	BoolValue   bool
}

var paramKnownAttrs = withGating("name", "value", "type", "textfile", "binfile", "command")

// ParseParam validates attribute combinations and, for inline values,
// parses and type-checks the text per the declared type. Without a type=
// attribute the value is kept as a string; no type is inferred.
func ParseParam(file string, attrs Attrs) (*Param, []Warning, error) {
	warnings := checkUnknown(file, "param", attrs, paramKnownAttrs)

	name, err := requireNonEmpty(attrs, "name", "param")
	if err != nil {
		return nil, warnings, err
	}

	sources := 0
	p := &Param{Name: name}
	if v, ok := attrs["value"]; ok {
		sources++
		p.Source = ParamSourceValue
		p.Raw = v
	}
	if v, ok := attrs["textfile"]; ok {
		sources++
		p.Source = ParamSourceTextFile
		p.Raw = v
	}
	if v, ok := attrs["binfile"]; ok {
		sources++
		p.Source = ParamSourceBinFile
		p.Raw = v
	}
	if v, ok := attrs["command"]; ok {
		sources++
		p.Source = ParamSourceCommand
		p.Raw = v
	}
	if sources != 1 {
		return nil, warnings, errors.Errorf("<param name=%q> requires exactly one of value/textfile/binfile/command, got %d", name, sources)
	}

	declared := ParamType(attrs["type"])
	if declared == "" {
		declared = ParamTypeAuto
	}

	if p.Source != ParamSourceValue {
		p.Type = declared
		return p, warnings, nil
	}

	t, sv, iv, dv, bv, err := typeValue(declared, p.Raw)
	if err != nil {
		return nil, warnings, errors.Wrapf(err, "<param name=%q>", name)
	}
	p.Type, p.StrValue, p.IntValue, p.DoubleValue, p.BoolValue = t, sv, iv, dv, bv
	return p, warnings, nil
}

// typeValue parses raw against declared. When declared is "auto" (the XML
// attribute default) or absent, the value is left as a plain string: a
// <param> with no explicit type="..." is always a string, never an
// inferred int/double/bool.
func typeValue(declared ParamType, raw string) (ParamType, string, int64, float64, bool, error) {
	switch declared {
	case ParamTypeStr:
		return ParamTypeStr, raw, 0, 0, false, nil
	case ParamTypeInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", "", 0, 0, false, errors.Wrapf(err, "invalid int %q", raw)
		}
		return ParamTypeInt, "", i, 0, false, nil
	case ParamTypeDouble:
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", "", 0, 0, false, errors.Wrapf(err, "invalid double %q", raw)
		}
		return ParamTypeDouble, "", 0, d, false, nil
	case ParamTypeBool:
		b, err := ParseBool(raw)
		if err != nil {
			return "", "", 0, 0, false, err
		}
		return ParamTypeBool, "", 0, 0, b, nil
	case ParamTypeYAML:
		return ParamTypeYAML, raw, 0, 0, false, nil
	case ParamTypeAuto, "":
		return ParamTypeStr, raw, 0, 0, false, nil
	default:
		return "", "", 0, 0, false, errors.Errorf("unknown param type %q", declared)
	}
}
