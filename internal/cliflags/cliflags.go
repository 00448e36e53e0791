// Package cliflags implements the command-line surface:
// flag parsing via cobra/pflag, positional-argument splitting into launch
// files versus NAME:=VALUE bindings, and the cross-flag constraints that
// make certain combinations a usage error before anything is compiled.
// Built as a single root command with no subcommands: every flag is a
// sibling and positional arguments carry all the launch-file/binding
// information.
package cliflags

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options is the fully parsed command line, ready for cmd/roslaunch to act
// on. Field names mirror flags one-for-one.
type Options struct {
	Files       []string
	Nodes       bool
	FindNode    string
	ArgsOf      string
	Child       string
	Local       bool
	Screen      bool
	ServerURI   string
	RunID       string
	Wait        bool
	Port        int
	Core        bool
	PIDFile     string
	Verbose     bool
	DumpParams  bool
	SkipLogCheck bool
	RosArgs     bool
	DisableTitle bool
	NumWorkers  int
	Timeout     float64

	// LaunchArgs holds positional NAME:=VALUE bindings whose NAME does not
	// begin with "__"; these become <arg> overrides for the top-level
	// launch files. SpecialArgs holds the ones that do, which configure
	// the launcher itself (e.g. __hostname, __ip) rather than any node.
	LaunchArgs  map[string]string
	SpecialArgs map[string]string

	// filesFlagSet records whether --files was passed, for Validate's
	// request-mode exclusivity check; the printed output itself is just
	// Options.Files, already populated regardless of this flag.
	filesFlagSet bool
}

// Parse builds a cobra command tree for the flags above, runs it against
// argv (normally os.Args[1:]), and returns the resulting Options. Parse
// itself does not validate cross-flag constraints; call Validate once
// Options is fully populated.
func Parse(argv []string) (*Options, error) {
	opts := &Options{
		LaunchArgs:  map[string]string{},
		SpecialArgs: map[string]string{},
	}

	cmd := &cobra.Command{
		Use:           "roslaunch [launch-files] [arg:=value ...]",
		Short:         "launch a graph of ROS nodes from one or more XML launch files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return splitPositionals(args, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.filesFlagSet, "files", false, "print the launch files that would be loaded, then exit")
	flags.BoolVar(&opts.Nodes, "nodes", false, "print the node names that would be launched, then exit")
	flags.StringVar(&opts.FindNode, "find-node", "", "print the launch file declaring the named node, then exit")
	flags.StringVar(&opts.ArgsOf, "args", "", "print the <arg> declarations of the named include, then exit")
	flags.StringVarP(&opts.Child, "child", "c", "", "run as a remote child under an already-running roslaunch parent")
	flags.BoolVar(&opts.Local, "local", false, "only launch nodes assigned to the local machine")
	flags.BoolVar(&opts.Screen, "screen", false, "force every node's output to the screen, overriding output=log")
	flags.StringVarP(&opts.ServerURI, "server_uri", "u", "", "the parent roslaunch's XML-RPC URI, required with --child")
	flags.StringVar(&opts.RunID, "run_id", "", "the run id to reconcile with the master")
	flags.BoolVar(&opts.Wait, "wait", false, "wait for an existing master rather than auto-starting one")
	flags.IntVarP(&opts.Port, "port", "p", 0, "port to run/connect to the master on")
	flags.BoolVar(&opts.Core, "core", false, "launch only a master, no launch files")
	flags.StringVar(&opts.PIDFile, "pid", "", "write this launcher's PID to the given file")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug-level logging")
	flags.BoolVar(&opts.DumpParams, "dump-params", false, "print the parameters that would be set, then exit")
	flags.BoolVar(&opts.SkipLogCheck, "skip-log-check", false, "skip the advisory free-space check on the log directory")
	flags.BoolVar(&opts.RosArgs, "ros-args", false, "print the effective arguments of a single launch file, then exit")
	flags.BoolVar(&opts.DisableTitle, "disable-title", false, "do not set the terminal window title")
	flags.IntVarP(&opts.NumWorkers, "numworkers", "w", 3, "number of worker threads for an auto-started master")
	flags.Float64VarP(&opts.Timeout, "timeout", "t", 0, "timeout in seconds (parsed but not applied; SSH connections use each <machine>'s timeout)")

	cmd.SetArgs(argv)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

// splitPositionals partitions argv's non-flag arguments into launch-file
// paths and NAME:=VALUE bindings, routing "__"-prefixed names to
// SpecialArgs.
func splitPositionals(args []string, opts *Options) error {
	for _, a := range args {
		if idx := strings.Index(a, ":="); idx >= 0 {
			name := a[:idx]
			value := a[idx+2:]
			if strings.HasPrefix(name, "__") {
				opts.SpecialArgs[name] = value
			} else {
				opts.LaunchArgs[name] = value
			}
			continue
		}
		opts.Files = append(opts.Files, a)
	}
	return nil
}

// Validate enforces cross-constraints once flags and
// positionals are both known.
func Validate(opts *Options) error {
	requestModes := 0
	for _, set := range []bool{opts.filesFlagSet, opts.Nodes, opts.DumpParams, opts.RosArgs} {
		if set {
			requestModes++
		}
	}
	if opts.FindNode != "" {
		requestModes++
	}
	if opts.ArgsOf != "" {
		requestModes++
	}
	if requestModes > 1 {
		return errors.New("--files, --nodes, --find-node, --args, --dump-params, and --ros-args are pairwise exclusive")
	}

	if opts.Wait && opts.Core {
		return errors.New("--wait and --core are mutually exclusive")
	}

	if opts.Child != "" {
		if opts.ServerURI == "" {
			return errors.New("--child requires --server_uri")
		}
		if opts.RunID == "" {
			return errors.New("--child requires --run_id")
		}
		if opts.Port != 0 {
			return errors.New("--child forbids --port")
		}
		if len(opts.Files) > 0 {
			return errors.New("--child forbids launch-file positional arguments")
		}
	}

	if opts.Core {
		if len(opts.Files) > 0 {
			return errors.New("--core forbids launch-file positional arguments")
		}
		if opts.RunID != "" {
			return errors.New("--core forbids --run_id")
		}
	}

	if requestModes == 1 && len(opts.Files) == 0 {
		switch {
		case opts.ArgsOf != "", opts.FindNode != "":
			return errors.New("this request mode requires at least one launch file")
		}
	}

	return nil
}

// UsageString renders cobra/pflag's own usage text, for printing on a
// command-line error.
func UsageString(flags *pflag.FlagSet) string {
	return flags.FlagUsages()
}
