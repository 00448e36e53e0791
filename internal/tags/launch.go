package tags

// Launch is the root <launch> element. Its only own attribute is
// deprecated, which is accepted without a warning but not stored; gating
// attributes are meaningless at the root but tolerated rather than
// rejected.
type Launch struct{}

var launchKnownAttrs = withGating("deprecated")

func ParseLaunch(file string, attrs Attrs) (*Launch, []Warning, error) {
	warnings := checkUnknown(file, "launch", attrs, launchKnownAttrs)
	return &Launch{}, warnings, nil
}
