// Package bootstrap implements master bring-up: resolving the master URI,
// probing for an already-running master, auto-starting one when absent,
// reconciling /run_id, and applying the plan's parameter operations in the
// required delete -> dump -> clear -> rosparam-set -> param-set order.
package bootstrap

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-roslaunch/roslaunch/internal/logging"
	"github.com/go-roslaunch/roslaunch/internal/plan"
	"github.com/go-roslaunch/roslaunch/internal/registry"
	"github.com/go-roslaunch/roslaunch/internal/tags"
)

var log = logging.Named("roslaunch.bootstrap")

const (
	probeTimeout  = 10 * time.Second
	probeInterval = 100 * time.Millisecond
)

// ErrMasterUnreachable is returned when no master answers within
// probeTimeout and none could be auto-started.
var ErrMasterUnreachable = errors.New("bootstrap: could not contact master")

// ErrRunIDMismatch is returned when an already-running master's /run_id
// does not match the run id this launch was invoked with.
var ErrRunIDMismatch = errors.New("bootstrap: existing master has a different run_id")

// ResolveMasterURI applies precedence: an explicit --port flag
// (portOverride > 0) wins, then ROS_MASTER_URI, then the default
// http://localhost:11311/.
func ResolveMasterURI(portOverride int) string {
	if portOverride > 0 {
		return "http://localhost:" + strconv.Itoa(portOverride) + "/"
	}
	if v, ok := os.LookupEnv("ROS_MASTER_URI"); ok && v != "" {
		return v
	}
	return "http://localhost:11311/"
}

// Master owns the lifecycle of one master connection: probing, optionally
// auto-starting a local master process, reconciling /run_id, and applying
// parameter operations.
type Master struct {
	Registry   *registry.Client
	MasterURI  string
	AutoBinary string // external master binary, e.g. "rosmaster"
	Workers    int

	coreCmd    *exec.Cmd
	coreHandle *masterHandle
}

// NewMaster builds a Master bound to uri, identifying itself to the master
// as callerID (normally "/roslaunch").
func NewMaster(callerID, uri, autoBinary string, workers int) *Master {
	return &Master{
		Registry:   registry.NewClient(callerID, uri),
		MasterURI:  uri,
		AutoBinary: autoBinary,
		Workers:    workers,
	}
}

// Probe reports whether a master is already answering at m.MasterURI.
func (m *Master) Probe(ctx context.Context) bool {
	_, err := m.Registry.GetSystemState(ctx)
	return err == nil
}

// EnsureMaster probes for an existing master; if none answers, it forks
// m.AutoBinary as a local master process and polls every probeInterval up
// to probeTimeout.6 steps 1-2. Returns ErrMasterUnreachable
// if the timeout expires with nothing answering.
func (m *Master) EnsureMaster(ctx context.Context) error {
	return m.ensureMaster(ctx, true)
}

// WaitForMaster probes for an existing master the same way EnsureMaster
// does, but never auto-starts one: it is the --wait flag's "wait for an
// existing master rather than auto-starting one" behavior.
func (m *Master) WaitForMaster(ctx context.Context) error {
	return m.ensureMaster(ctx, false)
}

func (m *Master) ensureMaster(ctx context.Context, autoStart bool) error {
	if m.Probe(ctx) {
		log.Info("found an existing master")
		return nil
	}

	if !autoStart {
		deadline := time.Now().Add(probeTimeout)
		for time.Now().Before(deadline) {
			if m.Probe(ctx) {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(probeInterval):
			}
		}
		return ErrMasterUnreachable
	}

	log.Info("auto-starting new master")
	if err := m.startCore(); err != nil {
		return errors.Wrap(err, "bootstrap: auto-starting master")
	}

	deadline := time.Now().Add(probeTimeout)
	for time.Now().Before(deadline) {
		if m.Probe(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(probeInterval):
		}
	}
	return ErrMasterUnreachable
}

func (m *Master) startCore() error {
	port := "11311"
	if u := m.MasterURI; u != "" {
		if p, err := portFromURI(u); err == nil {
			port = p
		}
	}
	workers := m.Workers
	if workers <= 0 {
		workers = 3
	}
	cmd := exec.Command(m.AutoBinary, "--core", "-p", port, "-w", strconv.Itoa(workers))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	m.coreCmd = cmd
	m.coreHandle = newMasterHandle(cmd)
	return nil
}

// Shutdown terminates an auto-started master process, if this Master
// started one. A no-op when the master was already running.
func (m *Master) Shutdown() {
	if m.coreHandle == nil {
		return
	}
	m.coreHandle.Destroy()
}

// CoreHandle returns a process.Handle-compatible wrapper around the
// auto-started master process, for registration with the supervisor per
// "launch each core node; add each to the
// supervisor". Returns nil if this Master did not auto-start one (an
// already-running master found by Probe needs no supervision here).
func (m *Master) CoreHandle() *masterHandle {
	return m.coreHandle
}

// masterHandle adapts an auto-started master process to the same
// Name/IsRequired/IsRunning/Restart/Destroy/Wait contract every other
// process handle in internal/process implements, without this package
// importing internal/process (it has no need for LocalHandle's argv/env
// machinery, only a much smaller lifecycle).
type masterHandle struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	name    string
	done    chan struct{}
	waitErr error
}

func newMasterHandle(cmd *exec.Cmd) *masterHandle {
	h := &masterHandle{cmd: cmd, name: "master", done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h
}

func (h *masterHandle) Name() string      { h.mu.Lock(); defer h.mu.Unlock(); return h.name }
func (h *masterHandle) SetName(n string)  { h.mu.Lock(); defer h.mu.Unlock(); h.name = n }
func (h *masterHandle) IsRequired() bool  { return true }
func (h *masterHandle) ShouldRespawn() bool { return false }
func (h *masterHandle) RespawnDelaySeconds() float64 { return 0 }

func (h *masterHandle) IsRunning() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *masterHandle) ExitCodeDescription() string {
	select {
	case <-h.done:
	default:
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waitErr == nil {
		return "process has finished cleanly"
	}
	return errors.Wrap(h.waitErr, "master process has died").Error()
}

func (h *masterHandle) Restart() error {
	return errors.New("bootstrap: the auto-started master process does not support restart")
}

func (h *masterHandle) Destroy() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

func (h *masterHandle) Wait() error {
	<-h.done
	return nil
}

func portFromURI(uri string) (string, error) {
	i := len("http://")
	if len(uri) <= i {
		return "", errors.Errorf("malformed master URI %q", uri)
	}
	rest := uri[i:]
	colon := -1
	for idx, c := range rest {
		if c == ':' {
			colon = idx
		}
		if c == '/' && colon >= 0 {
			return rest[colon+1 : idx], nil
		}
	}
	if colon >= 0 {
		return rest[colon+1:], nil
	}
	return "", errors.Errorf("malformed master URI %q", uri)
}

// ReconcileRunID implements : if /run_id is unset on the
// master, set it (logging the assignment); if set and equal, continue
// silently; if set and different, fail with ErrRunIDMismatch.
func (m *Master) ReconcileRunID(ctx context.Context, runID string) error {
	existing, err := m.Registry.GetParam(ctx, "/run_id")
	if err != nil {
		return errors.Wrap(err, "bootstrap: checking /run_id")
	}
	if existing == nil {
		log.Infof("setting /run_id to %s", runID)
		return m.Registry.SetParam(ctx, "/run_id", runID)
	}
	existingStr, _ := existing.(string)
	if existingStr != runID {
		return errors.Wrapf(ErrRunIDMismatch, "master has %q, launch wants %q", existingStr, runID)
	}
	return nil
}

// ApplyParams pushes p's parameter operations to the master in the strict
// required order: delete, then dump, then clear (already unified by
// internal/plan), then rosparam load, then inline <param> sets.
func (m *Master) ApplyParams(ctx context.Context, p *plan.Plan) error {
	for _, rp := range p.RosParams {
		if rp.Tag.Command == tags.RosParamDelete {
			key := rp.Tag.Param
			if key == "" {
				key = rp.Namespace
			}
			if err := m.Registry.DeleteParam(ctx, key); err != nil {
				return errors.Wrapf(err, "deleting %q (declared in %s)", key, rp.SourceFile)
			}
		}
	}

	for _, rp := range p.RosParams {
		if rp.Tag.Command == tags.RosParamDump {
			log.Warnf("rosparam dump to %q (declared in %s) is not performed", rp.Tag.File, rp.SourceFile)
		}
	}

	for _, ns := range p.ClearParams {
		if err := m.Registry.ClearParam(ctx, ns); err != nil {
			return errors.Wrapf(err, "clearing %q", ns)
		}
	}

	for _, rp := range p.RosParams {
		if rp.Tag.Command != tags.RosParamLoad {
			continue
		}
		doc, err := loadRosParamYAML(rp.Tag)
		if err != nil {
			return errors.Wrapf(err, "loading rosparam (declared in %s)", rp.SourceFile)
		}
		if !rp.Tag.HasFile && rp.Tag.Param == "" {
			var root interface{}
			if err := yaml.Unmarshal(doc, &root); err != nil {
				return errors.Wrapf(err, "parsing rosparam body (declared in %s)", rp.SourceFile)
			}
			if _, isMapping := root.(map[string]interface{}); !isMapping {
				return errors.Errorf("<rosparam> with an inline body whose YAML root is not a mapping requires a 'param' attribute (declared in %s)", rp.SourceFile)
			}
		}
		target := rp.Namespace
		if rp.Tag.Param != "" {
			target = rp.Tag.Param
		}
		if err := m.Registry.SetYamlParam(ctx, target, doc); err != nil {
			return errors.Wrapf(err, "setting rosparam at %q (declared in %s)", target, rp.SourceFile)
		}
	}

	for _, ps := range p.Params {
		value, err := resolveParamValue(ps.Tag)
		if err != nil {
			return errors.Wrapf(err, "resolving <param name=%q> (declared in %s)", ps.Tag.Name, ps.SourceFile)
		}
		if err := m.Registry.SetParam(ctx, ps.ResolvedName, value); err != nil {
			return errors.Wrapf(err, "setting param %q", ps.ResolvedName)
		}
	}

	return nil
}

// loadRosParamYAML returns the raw YAML document a <rosparam> tag names,
// reading it from disk when file= was given and falling back to the
// element's inline body otherwise.
func loadRosParamYAML(t *tags.RosParam) ([]byte, error) {
	if t.HasFile {
		return os.ReadFile(t.File)
	}
	return []byte(t.InlineYAML), nil
}

// resolveParamValue produces the value a <param> tag's source actually
// names: the typed inline value, the contents of a text file, the
// base64-free raw bytes of a binary file, or a command's captured stdout.
// This is the one place in the pipeline that touches the filesystem or
// forks a subprocess for a <param>'s own value, since internal/tags and
// internal/compile are deliberately I/O-free.
func resolveParamValue(t *tags.Param) (interface{}, error) {
	switch t.Source {
	case tags.ParamSourceValue:
		switch t.Type {
		case tags.ParamTypeInt:
			return int32(t.IntValue), nil
		case tags.ParamTypeDouble:
			return t.DoubleValue, nil
		case tags.ParamTypeBool:
			return t.BoolValue, nil
		default:
			return t.StrValue, nil
		}
	case tags.ParamSourceTextFile:
		data, err := os.ReadFile(t.Raw)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case tags.ParamSourceBinFile:
		data, err := os.ReadFile(t.Raw)
		if err != nil {
			return nil, err
		}
		return data, nil
	case tags.ParamSourceCommand:
		out, err := exec.Command("sh", "-c", t.Raw).Output()
		if err != nil {
			return nil, errors.Wrapf(err, "running command %q", t.Raw)
		}
		return strings.TrimSpace(string(out)), nil
	default:
		return nil, errors.Errorf("unknown param source for %q", t.Name)
	}
}
