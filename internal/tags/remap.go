package tags

// Remap is <remap from="..." to="...">: a name remapping scoped to the
// enclosing <node>/<group>/<launch> that collects it.
type Remap struct {
	From string
	To   string
}

var remapKnownAttrs = withGating("from", "to")

func ParseRemap(file string, attrs Attrs) (*Remap, []Warning, error) {
	warnings := checkUnknown(file, "remap", attrs, remapKnownAttrs)

	from, err := requireNonEmpty(attrs, "from", "remap")
	if err != nil {
		return nil, warnings, err
	}
	to, err := requireNonEmpty(attrs, "to", "remap")
	if err != nil {
		return nil, warnings, err
	}
	return &Remap{From: from, To: to}, warnings, nil
}
