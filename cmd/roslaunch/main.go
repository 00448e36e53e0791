// Command roslaunch starts a graph of ROS nodes from one or more XML
// launch files, bootstrapping a master if needed and supervising every
// process until shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/go-roslaunch/roslaunch/internal/bootstrap"
	"github.com/go-roslaunch/roslaunch/internal/cliflags"
	"github.com/go-roslaunch/roslaunch/internal/compile"
	"github.com/go-roslaunch/roslaunch/internal/console"
	"github.com/go-roslaunch/roslaunch/internal/diskcheck"
	"github.com/go-roslaunch/roslaunch/internal/launch"
	"github.com/go-roslaunch/roslaunch/internal/logging"
	"github.com/go-roslaunch/roslaunch/internal/names"
	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
	"github.com/go-roslaunch/roslaunch/internal/plan"
	"github.com/go-roslaunch/roslaunch/internal/substitution"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	out := console.New()

	opts, err := cliflags.Parse(argv)
	if err != nil {
		out.Error(err.Error())
		return 1
	}
	if err := cliflags.Validate(opts); err != nil {
		out.Error(err.Error())
		return 1
	}

	if opts.Verbose {
		logging.SetLevel(logrus.DebugLevel)
	}

	if opts.Child != "" {
		out.Error("running as a remote child (--child) is not supported by this launcher build")
		return 1
	}

	if opts.Core {
		return runCoreOnly(out, opts)
	}

	locator := pkgpath.NewLocator(os.Getenv("ROS_PACKAGE_PATH"))
	anon := substitution.NewAnonMemo()
	compiler := compile.NewCompiler(locator, anon)

	tree, err := compileAll(compiler, opts)
	if err != nil {
		out.Error(err.Error())
		return 1
	}

	if handled, code := handleRequestMode(out, tree, opts); handled {
		return code
	}

	locality := bootstrap.NewHostLocality()
	p, err := plan.Assemble(tree, locality)
	if err != nil {
		out.Error(err.Error())
		return 1
	}
	if opts.Local {
		filterToLocalNodes(p)
	}
	if opts.Screen {
		forceScreenOutput(p)
	}

	if opts.PIDFile != "" {
		if err := writePIDFile(opts.PIDFile); err != nil {
			out.Warning(fmt.Sprintf("could not write pid file: %v", err))
		}
		defer os.Remove(opts.PIDFile)
	}

	runID := opts.RunID
	if runID == "" {
		runID = launch.GenerateRunID()
	}

	logDir, err := resolveLogDir(runID)
	if err != nil {
		out.Error(err.Error())
		return 1
	}
	if !opts.SkipLogCheck {
		if low, pct := diskcheck.CheckLogDir(filepath.Dir(logDir)); low {
			out.Warning(fmt.Sprintf("log directory filesystem is low on space (%.1f%% free)", pct*100))
		}
	}

	if !opts.DisableTitle {
		console.SetTitle(terminalTitle(opts))
	}

	runnerOpts := launch.Options{
		CallerID:         "/roslaunch",
		PortOverride:     opts.Port,
		AutoMasterBinary: "rosmaster",
		Workers:          opts.NumWorkers,
		LauncherBinary:   launcherBinaryPath(),
		LogDir:           logDir,
		RunID:            runID,
		Wait:             opts.Wait,
		Locator:          locator,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.Header("roslaunch starting")
	r, err := launch.Launch(ctx, p, runnerOpts)
	if err != nil {
		out.Error(err.Error())
		return 1
	}
	out.Success(fmt.Sprintf("launched %d node(s), run_id %s", len(p.Nodes), r.RunID))

	r.Spin(ctx)

	if err := ctx.Err(); err != nil {
		out.Info("shutdown requested, exiting cleanly")
	}
	return 0
}

// runCoreOnly implements --core: bring up (or confirm) a master and then
// idle until interrupted, launching no nodes at all.
func runCoreOnly(out *console.Printer, opts *cliflags.Options) int {
	master := bootstrap.NewMaster("/roslaunch", bootstrap.ResolveMasterURI(opts.Port), "rosmaster", opts.NumWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := master.EnsureMaster(ctx); err != nil {
		out.Error(err.Error())
		return 1
	}
	out.Success("master is up")
	defer master.Shutdown()

	<-ctx.Done()
	out.Info("shutdown requested, exiting cleanly")
	return 0
}

// compileAll compiles every launch file named on the command line, merging
// their element trees into one synthetic root so internal/plan sees a
// single tree regardless of how many files were given.
func compileAll(compiler *compile.Compiler, opts *cliflags.Options) (*compile.Tree, error) {
	merged := &compile.Tree{DeclaredArgs: map[string]bool{}}
	for _, file := range opts.Files {
		scope := compile.NewRootScope(opts.LaunchArgs)
		tree, err := compiler.CompileFile(file, scope, nil)
		if err != nil {
			return nil, err
		}
		merged.Children = append(merged.Children, tree.Children...)
		for k := range tree.DeclaredArgs {
			merged.DeclaredArgs[k] = true
		}
		if merged.File == "" {
			merged.File = tree.File
		}
	}
	return merged, nil
}

// handleRequestMode serves the info-only flags, each of which prints something and exits without ever touching
// the master or forking a process.
func handleRequestMode(out *console.Printer, tree *compile.Tree, opts *cliflags.Options) (handled bool, code int) {
	switch {
	case opts.Nodes:
		for _, name := range nodeNames(tree) {
			out.Println(name)
		}
		return true, 0

	case opts.FindNode != "":
		file, ok := findNodeFile(tree, opts.FindNode)
		if !ok {
			out.Error(fmt.Sprintf("node %q not found", opts.FindNode))
			return true, 1
		}
		out.Println(file)
		return true, 0

	case opts.DumpParams:
		locality := bootstrap.NewHostLocality()
		p, err := plan.Assemble(tree, locality)
		if err != nil {
			out.Error(err.Error())
			return true, 1
		}
		for _, ps := range p.Params {
			out.Println(ps.ResolvedName)
		}
		return true, 0

	case opts.RosArgs:
		args := make([]string, 0, len(tree.DeclaredArgs))
		for k := range tree.DeclaredArgs {
			args = append(args, k)
		}
		sort.Strings(args)
		for _, a := range args {
			out.Println(a)
		}
		return true, 0
	}
	return false, 0
}

func nodeNames(tree *compile.Tree) []string {
	var resolved []string
	var walk func(els []compile.Element)
	walk = func(els []compile.Element) {
		for _, el := range els {
			switch e := el.(type) {
			case *compile.NodeElement:
				resolved = append(resolved, names.JoinNamespace(e.Namespace, e.Tag.Name))
			case *compile.GroupElement:
				walk(e.Children)
			case *compile.IncludeElement:
				walk(e.Children)
			}
		}
	}
	walk(tree.Children)
	sort.Strings(resolved)
	return resolved
}

func findNodeFile(tree *compile.Tree, name string) (string, bool) {
	var found string
	var ok bool
	var walk func(els []compile.Element)
	walk = func(els []compile.Element) {
		for _, el := range els {
			switch e := el.(type) {
			case *compile.NodeElement:
				if e.Tag.Name == name || names.JoinNamespace(e.Namespace, e.Tag.Name) == name {
					found, ok = e.File, true
				}
			case *compile.GroupElement:
				walk(e.Children)
			case *compile.IncludeElement:
				walk(e.Children)
			}
		}
	}
	walk(tree.Children)
	return found, ok
}

func filterToLocalNodes(p *plan.Plan) {
	kept := p.Nodes[:0]
	for _, n := range p.Nodes {
		if n.Local {
			kept = append(kept, n)
		}
	}
	p.Nodes = kept
}

func forceScreenOutput(p *plan.Plan) {
	for _, n := range p.Nodes {
		n.Output = "screen"
	}
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// resolveLogDir builds the per-run log directory, named after the run
// identifier, under ROS_HOME (or ROS_LOG_DIR if set).
func resolveLogDir(runID string) (string, error) {
	base := os.Getenv("ROS_LOG_DIR")
	if base == "" {
		if home, ok := os.LookupEnv("ROS_HOME"); ok && home != "" {
			base = filepath.Join(home, "log")
		} else if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".ros", "log")
		} else {
			return "", err
		}
	}
	return filepath.Join(base, runID), nil
}

func terminalTitle(opts *cliflags.Options) string {
	if len(opts.Files) == 1 {
		return "roslaunch " + filepath.Base(opts.Files[0])
	}
	return "roslaunch"
}

// launcherBinaryPath returns the path re-exec'd on remote machines per
// "env ROS_MASTER_URI=... <launcher-binary> -c ...".
func launcherBinaryPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "roslaunch"
	}
	return exe
}
