package tags

import "github.com/pkg/errors"

// Arg is <arg name="..." default="..."/> or <arg name="..." value="..."/>:
// a declared name plus either a default (overridable by an enclosing
// $(arg) binding) or a fixed value (not overridable).
type Arg struct {
	Name    string
	Default string
	Value   string
	HasDefault bool
	HasValue   bool
}

var argKnownAttrs = withGating("name", "default", "value", "doc")

// ParseArg validates and constructs an Arg from resolved attributes.
func ParseArg(file string, attrs Attrs) (*Arg, []Warning, error) {
	warnings := checkUnknown(file, "arg", attrs, argKnownAttrs)

	name, err := requireNonEmpty(attrs, "name", "arg")
	if err != nil {
		return nil, warnings, err
	}

	def, hasDefault := attrs["default"]
	value, hasValue := attrs["value"]
	if hasDefault && hasValue {
		return nil, warnings, errors.Errorf("<arg name=%q>: 'default' and 'value' are mutually exclusive", name)
	}

	return &Arg{
		Name:       name,
		Default:    def,
		Value:      value,
		HasDefault: hasDefault,
		HasValue:   hasValue,
	}, warnings, nil
}
