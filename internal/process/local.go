package process

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-roslaunch/roslaunch/internal/logging"
	"github.com/go-roslaunch/roslaunch/internal/names"
	"github.com/go-roslaunch/roslaunch/internal/plan"
	"github.com/go-roslaunch/roslaunch/internal/tags"
)

var localLog = logging.Named("roslaunch.localprocess")

// LocalHandle runs and supervises one process on this machine.
type LocalHandle struct {
	mu sync.Mutex

	name     string
	isCore   bool
	required bool
	respawn  bool
	respawnDelaySeconds float64

	argv        []string // stdbuf -oL -eL, launch-prefix..., execPath, remaps..., __name:=..., node-args..., [__log:=... appended below]
	logArgIndex int       // index into argv of the __log:=... token, -1 when output is not file-routed
	toFile      bool
	logDir      string
	runUUID     string

	env []string
	dir string

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewLocalHandle builds a LocalHandle for spec, ready to Start. execPath is
// the resolved path to the node's executable; masterURI and runUUID feed
// the child's environment and log-file naming respectively.
func NewLocalHandle(spec *plan.NodeSpec, execPath, masterURI, runUUID, logDir string, isCore bool) *LocalHandle {
	h := &LocalHandle{
		name:                spec.ResolvedName + "-1",
		isCore:              isCore,
		required:            spec.Required,
		respawn:             spec.Respawn,
		respawnDelaySeconds: spec.RespawnDelay,
		toFile:              spec.Output == tags.OutputLog,
		logDir:              logDir,
		runUUID:             runUUID,
		env:                 buildEnv(spec, masterURI),
		dir:                 resolveCWD(spec, execPath),
		logArgIndex:         -1,
	}
	h.argv = buildArgv(spec, execPath)
	if h.toFile {
		h.argv = append(h.argv, "__log:="+h.logFilePath())
		h.logArgIndex = len(h.argv) - 1
	}
	return h
}

func buildArgv(spec *plan.NodeSpec, execPath string) []string {
	var argv []string
	argv = append(argv, "stdbuf", "-oL", "-eL")
	if spec.LaunchPrefix != "" {
		argv = append(argv, strings.Fields(spec.LaunchPrefix)...)
	}
	argv = append(argv, execPath)

	remapKeys := make([]string, 0, len(spec.Remap))
	for k := range spec.Remap {
		remapKeys = append(remapKeys, k)
	}
	sort.Strings(remapKeys)
	for _, k := range remapKeys {
		argv = append(argv, k+":="+spec.Remap[k])
	}

	_, base, err := names.QualifyNodeName(spec.ResolvedName)
	if err != nil {
		base = spec.ResolvedName
	}
	argv = append(argv, "__name:="+base)

	if spec.Args != "" {
		argv = append(argv, strings.Fields(spec.Args)...)
	}
	return argv
}

// buildEnv implements env rule: the parent environment,
// minus ROS_NAMESPACE, plus the node's own <env> children, plus the
// registry URI, plus ROS_NAMESPACE set to the node's namespace when it is
// non-empty.
func buildEnv(spec *plan.NodeSpec, masterURI string) []string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key := kv[:idx]
			if key == "ROS_NAMESPACE" {
				continue
			}
			env[key] = kv[idx+1:]
		}
	}
	for k, v := range spec.Env {
		env[k] = v
	}
	env["ROS_MASTER_URI"] = masterURI
	if ns := strings.TrimSuffix(spec.Namespace, "/"); ns != "" {
		env["ROS_NAMESPACE"] = ns
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// resolveCWD implements the cwd policy: "ros-home" (default) runs in
// $ROS_HOME (or ~/.ros), "ros-root" in
// $ROS_ROOT, "node" in the executable's own directory, and "cwd" inherits
// the launcher's own working directory (an empty Dir, for exec.Cmd).
func resolveCWD(spec *plan.NodeSpec, execPath string) string {
	switch spec.CWD {
	case "node":
		return filepath.Dir(execPath)
	case "ros-root":
		return os.Getenv("ROS_ROOT")
	case "cwd":
		return ""
	case "ros-home", "":
		if home, ok := os.LookupEnv("ROS_HOME"); ok && home != "" {
			return home
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".ros")
		}
		return ""
	default:
		return ""
	}
}

func (h *LocalHandle) logFilePath() string {
	_, base, err := names.QualifyNodeName(h.name)
	if err != nil {
		base = h.name
	}
	return filepath.Join(h.logDir, fmt.Sprintf("%s-%s.log", base, h.runUUID))
}

func (h *LocalHandle) Name() string { h.mu.Lock(); defer h.mu.Unlock(); return h.name }

func (h *LocalHandle) SetName(name string) { h.mu.Lock(); defer h.mu.Unlock(); h.name = name }

func (h *LocalHandle) IsRequired() bool { return h.required }

func (h *LocalHandle) ShouldRespawn() bool { return h.respawn }

func (h *LocalHandle) RespawnDelaySeconds() float64 { return h.respawnDelaySeconds }

// Start forks the process for the first time.
func (h *LocalHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.start(false)
}

// start launches argv[0] (or argv[1] if launch-prefix tokens precede it is
// irrelevant here since exec.Command takes the full argv slice directly).
// appendLog controls whether the file-routed log is appended to or truncated.
func (h *LocalHandle) start(appendLog bool) error {
	cmd := exec.Command(h.argv[0], h.argv[1:]...)
	cmd.Env = h.env
	cmd.Dir = h.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrapf(err, "process %q: stdout pipe", h.name)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrapf(err, "process %q: stderr pipe", h.name)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "process %q: start", h.name)
	}

	h.cmd = cmd
	h.done = make(chan struct{})

	if h.toFile {
		if err := os.MkdirAll(h.logDir, 0o755); err != nil {
			localLog.Warnf("process %q: could not create log dir %q: %v", h.name, h.logDir, err)
		}
		logFile, ferr := openLogFile(h.logFilePath(), appendLog)
		if ferr != nil {
			localLog.Warnf("process %q: could not open log file: %v", h.name, ferr)
			go drainToWriter(stdout, io.Discard)
			go drainToWriter(stderr, io.Discard)
		} else {
			go drainLinesToFile(stdout, logFile)
			go func() { drainLinesToFile(stderr, logFile); logFile.Close() }()
		}
	} else {
		go drainLines(stdout, os.Stdout, h.name)
		go drainLines(stderr, os.Stderr, h.name)
	}

	done := h.done
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(done)
	}()

	h.printStartMessage()
	return nil
}

func (h *LocalHandle) printStartMessage() {
	if h.isCore {
		localLog.Infof("started core service [%s]", h.name)
		return
	}
	pid := -1
	if h.cmd.Process != nil {
		pid = h.cmd.Process.Pid
	}
	localLog.Infof("process[%s]: started with pid [%d]", h.name, pid)
}

func openLogFile(path string, appendLog bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendLog {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(path, flags, 0o644)
}

func drainLines(r io.Reader, w io.Writer, name string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Fprintf(w, "[%s]: %s\n", name, scanner.Text())
	}
}

func drainLinesToFile(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
}

func drainToWriter(r io.Reader, w io.Writer) {
	_, _ = io.Copy(w, r)
}

// IsRunning reports whether the child is still alive.
func (h *LocalHandle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCodeDescription matches human-readable contract: a
// clean exit, a crash with pid/exit code/cmd, and (when file-routed) the
// log file path, or "" while still running.
func (h *LocalHandle) ExitCodeDescription() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return ""
	}
	select {
	case <-h.done:
	default:
		return ""
	}

	var desc string
	if h.waitErr == nil {
		desc = "process has finished cleanly"
	} else {
		pid := -1
		if h.cmd.Process != nil {
			pid = h.cmd.Process.Pid
		}
		code := exitCode(h.waitErr)
		desc = fmt.Sprintf("process has died [pid: %d, exit code: %d, cmd: %s]", pid, code, strings.Join(h.argv, " "))
	}
	if h.toFile {
		desc += "\nlog file: " + h.logFilePath()
	}
	return desc
}

func exitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// Restart implements restart contract: only the log-file
// argument is recomputed (against the handle's possibly-renamed current
// name); the launch-prefix, executable, remaps, __name and node-args are
// preserved verbatim.
func (h *LocalHandle) Restart() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	if h.logArgIndex >= 0 {
		h.argv[h.logArgIndex] = "__log:=" + h.logFilePath()
	}
	return h.start(true)
}

// Destroy stops the process if it is running.
func (h *LocalHandle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// Wait blocks until the process has exited.
func (h *LocalHandle) Wait() error {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return nil
}
