package tags

// Env is <env name="..." value="...">: an environment variable to set in
// the child process started by the enclosing <node>/<test>, or in every
// node started within the enclosing <launch>/<group>/<include> scope.
type Env struct {
	Name  string
	Value string
}

var envKnownAttrs = withGating("name", "value")

func ParseEnv(file string, attrs Attrs) (*Env, []Warning, error) {
	warnings := checkUnknown(file, "env", attrs, envKnownAttrs)

	name, err := requireNonEmpty(attrs, "name", "env")
	if err != nil {
		return nil, warnings, err
	}
	value, err := requireNonEmpty(attrs, "value", "env")
	if err != nil {
		return nil, warnings, err
	}
	return &Env{Name: name, Value: value}, warnings, nil
}
