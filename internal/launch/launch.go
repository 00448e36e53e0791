// Package launch is the orchestrator: it glues bootstrap, registry,
// process, and monitor together into setup -> parameter push -> core
// launch -> node launch in plan order -> monitor-loop-until-shutdown.
package launch

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/go-roslaunch/roslaunch/internal/bootstrap"
	"github.com/go-roslaunch/roslaunch/internal/logging"
	"github.com/go-roslaunch/roslaunch/internal/monitor"
	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
	"github.com/go-roslaunch/roslaunch/internal/plan"
	"github.com/go-roslaunch/roslaunch/internal/process"
)

var log = logging.Named("roslaunch.runner")

// Options configures one launch run.
type Options struct {
	CallerID         string // identifies this launcher to the master, e.g. "/roslaunch"
	PortOverride     int    // --port flag; 0 means "use ROS_MASTER_URI"
	AutoMasterBinary string // external master binary forked when none is reachable
	Workers          int    // -w passed to the auto-started master
	LauncherBinary   string // re-exec target for remote nodes
	LogDir           string // per-run log directory
	RunID            string // explicit run id (e.g. --run_id); generated if empty
	Wait             bool   // --wait: never auto-start a master, only wait for one
	Locator          *pkgpath.Locator
}

// Runner owns one launch run's master connection and process supervisor.
type Runner struct {
	Monitor *monitor.Monitor
	Master  *bootstrap.Master
	RunID   string
}

// Launch performs setup for p and returns a Runner ready to
// Spin. On any setup failure, every process started so far is torn down
// before the error is returned, so a failed bring-up never leaves orphans.
func Launch(ctx context.Context, p *plan.Plan, opts Options) (*Runner, error) {
	runID := opts.RunID
	if runID == "" {
		runID = GenerateRunID()
	}

	uri := bootstrap.ResolveMasterURI(opts.PortOverride)
	master := bootstrap.NewMaster(opts.CallerID, uri, opts.AutoMasterBinary, opts.Workers)

	log.Infof("starting launch run %s against %s", runID, uri)

	r := &Runner{Monitor: monitor.New(), Master: master, RunID: runID}

	if err := r.setup(ctx, p, opts); err != nil {
		log.Warnf("setup failed, tearing down: %v", err)
		r.Monitor.Shutdown()
		master.Shutdown()
		return nil, err
	}
	return r, nil
}

func (r *Runner) setup(ctx context.Context, p *plan.Plan, opts Options) error {
	bringUp := r.Master.EnsureMaster
	if opts.Wait {
		bringUp = r.Master.WaitForMaster
	}
	if err := bringUp(ctx); err != nil {
		return errors.Wrap(err, "launch: bringing up master")
	}
	if err := r.Master.ReconcileRunID(ctx, r.RunID); err != nil {
		return errors.Wrap(err, "launch: reconciling run_id")
	}
	if err := r.Master.ApplyParams(ctx, p); err != nil {
		return errors.Wrap(err, "launch: applying parameter operations")
	}

	if core := r.Master.CoreHandle(); core != nil {
		r.Monitor.AddProcess(core)
	}

	for _, n := range p.Nodes {
		if n.IsTest {
			continue
		}
		handle, err := r.startNode(n, p, opts)
		if err != nil {
			return errors.Wrapf(err, "launching node %q", n.ResolvedName)
		}
		log.Infof("started node %s", handle.Name())
		r.Monitor.AddProcess(handle)
	}
	return nil
}

func (r *Runner) startNode(n *plan.NodeSpec, p *plan.Plan, opts Options) (process.Handle, error) {
	if n.Local {
		execPath, err := locateExecutable(opts.Locator, n.Pkg, n.Type)
		if err != nil {
			return nil, err
		}
		h := process.NewLocalHandle(n, execPath, r.Master.MasterURI, r.RunID, opts.LogDir, false)
		if err := h.Start(); err != nil {
			return nil, err
		}
		return h, nil
	}

	machine, ok := p.Machines[n.Machine]
	if !ok {
		return nil, errors.Errorf("node %q references undefined machine %q", n.ResolvedName, n.Machine)
	}
	h := process.NewRemoteHandle(n.ResolvedName, r.RunID, r.Master.MasterURI, opts.LauncherBinary, machine)
	if err := h.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

// locateExecutable resolves a <node>'s pkg/type into a runnable path: the
// package directory's own file named type, or (failing that) the first
// file of that name found anywhere beneath it.
func locateExecutable(locator *pkgpath.Locator, pkg, typ string) (string, error) {
	dir, err := locator.Find(pkg)
	if err != nil {
		return "", errors.Wrapf(err, "resolving package %q", pkg)
	}
	direct := filepath.Join(dir, typ)
	if info, err := os.Stat(direct); err == nil && !info.IsDir() {
		return direct, nil
	}

	found := ""
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if !info.IsDir() && info.Name() == typ {
			found = path
		}
		return nil
	})
	if found == "" {
		return "", errors.Errorf("executable %q not found in package %q", typ, pkg)
	}
	return found, nil
}

// Spin runs the monitor loop until shutdown or ctx is cancelled, per
// "sleeping 100ms per iteration until shutdown".
func (r *Runner) Spin(ctx context.Context) {
	for !r.Monitor.IsShutdown() {
		select {
		case <-ctx.Done():
			r.Shutdown()
			return
		default:
		}
		r.Monitor.Monitor()
		time.Sleep(monitor.CycleInterval)
	}
}

// Shutdown tears down every supervised process and the auto-started master,
// if any.
func (r *Runner) Shutdown() {
	r.Monitor.Shutdown()
	r.Master.Shutdown()
}

// GenerateRunID mirrors internal/substitution's anon-name idiom: hostname,
// pid, and a seeded random int, joined into something unique enough per
// run. Exported so cmd/roslaunch can generate it once, up front, and reuse
// the same id for both the log directory name and the Options.RunID passed
// to Launch — generating it twice would desync the two.
func GenerateRunID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	n := rng.Int63n(1 << 30)
	return hostname + "-" + strconv.Itoa(os.Getpid()) + "-" + strconv.FormatInt(n, 10)
}
