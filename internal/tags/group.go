package tags

// Group is <group ns="..." clear_params="...">: a pure namespace/scope
// container with no executable content of its own.
type Group struct {
	Namespace   string
	ClearParams bool
}

var groupKnownAttrs = withGating("ns", "clear_params")

func ParseGroup(file string, attrs Attrs) (*Group, []Warning, error) {
	warnings := checkUnknown(file, "group", attrs, groupKnownAttrs)

	clearParams, err := ParseOptionalBool(attrs["clear_params"], false)
	if err != nil {
		return nil, warnings, err
	}

	return &Group{
		Namespace:   attrs["ns"],
		ClearParams: clearParams,
	}, warnings, nil
}
