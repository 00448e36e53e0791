package names

import "errors"

var (
	errEmptyName       = errors.New("names: empty node name")
	errPrivateNodeName = errors.New("names: node name must not contain '~'")
)
