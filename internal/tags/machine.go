package tags

import "github.com/pkg/errors"

// MachineDefault is a <machine>'s default= attribute (true/false/never). It
// is validated and carried into the plan's machine table; machine
// assignment does not consult it, and a node without machine= always binds
// to the built-in local machine.
type MachineDefault string

const (
	MachineDefaultFalse MachineDefault = "false"
	MachineDefaultTrue  MachineDefault = "true"
	MachineDefaultNever MachineDefault = "never"
)

// Machine is <machine name="..." address="..." ... />: the connection
// parameters for a remote host that <node>s may run on. Two Machine values
// with identical connection parameters are consolidated by the config
// assembler
// to avoid redundant SSH sessions.
type Machine struct {
	Name      string
	Address   string
	EnvLoader string
	SSHPort   int
	Username  string
	Password  string
	Default   MachineDefault
	Timeout   float64
}

var machineKnownAttrs = withGating(
	"name", "address", "env-loader", "ssh-port", "user", "password", "default", "timeout",
)

func ParseMachine(file string, attrs Attrs) (*Machine, []Warning, error) {
	warnings := checkUnknown(file, "machine", attrs, machineKnownAttrs)

	name, err := requireNonEmpty(attrs, "name", "machine")
	if err != nil {
		return nil, warnings, err
	}
	address, err := requireNonEmpty(attrs, "address", "machine")
	if err != nil {
		return nil, warnings, err
	}

	port := 22
	if v, ok := attrs["ssh-port"]; ok {
		p, perr := parseIntAttr(v)
		if perr != nil {
			return nil, warnings, errors.Wrapf(perr, "<machine name=%q ssh-port=...>", name)
		}
		port = p
	}

	isDefault := MachineDefaultFalse
	if v, ok := attrs["default"]; ok {
		switch MachineDefault(v) {
		case MachineDefaultTrue, MachineDefaultFalse, MachineDefaultNever:
			isDefault = MachineDefault(v)
		default:
			return nil, warnings, errors.Errorf("<machine name=%q default=...>: expected true/false/never", name)
		}
	}

	timeout := 10.0
	if v, ok := attrs["timeout"]; ok {
		f, ferr := parseFloatAttr(v)
		if ferr != nil {
			return nil, warnings, errors.Wrapf(ferr, "<machine name=%q timeout=...>", name)
		}
		timeout = f
	}

	return &Machine{
		Name:       name,
		Address:    address,
		EnvLoader:  attrs["env-loader"],
		SSHPort:    port,
		Username:   attrs["user"],
		Password:   attrs["password"],
		Default:    isDefault,
		Timeout:    timeout,
	}, warnings, nil
}
