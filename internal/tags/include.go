package tags

// Include is <include file="..." ns="..." pass_all_args="...">. Cycle
// detection and the recursive parse/compile of the referenced file are the
// compiler's job; this struct only records the declaration.
type Include struct {
	File         string
	Namespace    string
	PassAllArgs  bool
	ClearParams  bool
}

var includeKnownAttrs = withGating("file", "ns", "pass_all_args", "clear_params")

func ParseInclude(file string, attrs Attrs) (*Include, []Warning, error) {
	warnings := checkUnknown(file, "include", attrs, includeKnownAttrs)

	target, err := requireNonEmpty(attrs, "file", "include")
	if err != nil {
		return nil, warnings, err
	}

	passAllArgs, err := ParseOptionalBool(attrs["pass_all_args"], false)
	if err != nil {
		return nil, warnings, err
	}
	clearParams, err := ParseOptionalBool(attrs["clear_params"], false)
	if err != nil {
		return nil, warnings, err
	}

	return &Include{
		File:        target,
		Namespace:   attrs["ns"],
		PassAllArgs: passAllArgs,
		ClearParams: clearParams,
	}, warnings, nil
}
