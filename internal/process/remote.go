package process

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/go-roslaunch/roslaunch/internal/logging"
	"github.com/go-roslaunch/roslaunch/internal/plan"
)

var remoteLog = logging.Named("roslaunch.remoteprocess")

const (
	globalKnownHosts = "/etc/ssh/ssh_known_hosts"
	defaultSSHPort   = 22
)

// RemoteHandle runs one node on a remote machine over SSH.
type RemoteHandle struct {
	sem sync.Mutex // serializes start/destroy/is-running

	name      string
	machine   *plan.MachineSpec
	masterURI string
	command   string

	allowUnknownHosts bool

	session *ssh.Session
	client  *ssh.Client
	done    chan struct{}

	started  bool
	exitCode int
}

// NewRemoteHandle builds a RemoteHandle that will invoke launcherBinary on
// machine to re-exec this launcher for a single remote process, per
// child-command shape.
func NewRemoteHandle(name, runID, masterURI, launcherBinary string, machine *plan.MachineSpec) *RemoteHandle {
	command := strings.TrimSpace(strings.Join([]string{
		machine.EnvLoader, launcherBinary, "-c", name, "-u", masterURI, "--run_id", runID,
	}, " "))

	return &RemoteHandle{
		name:              name + "-1",
		machine:           machine,
		masterURI:         masterURI,
		command:           command,
		allowUnknownHosts: os.Getenv("ROSLAUNCH_SSH_UNKNOWN") == "1",
		exitCode:          -1,
	}
}

func (h *RemoteHandle) Name() string { return h.name }

func (h *RemoteHandle) SetName(name string) { h.name = name }

func (h *RemoteHandle) IsRequired() bool { return false }

func (h *RemoteHandle) ShouldRespawn() bool { return false }

func (h *RemoteHandle) RespawnDelaySeconds() float64 { return 0 }

// Start opens the SSH session and launches the remote command.
func (h *RemoteHandle) Start() error {
	h.sem.Lock()
	defer h.sem.Unlock()

	h.started = false

	userDisplay := ""
	if h.machine.Username != "" {
		userDisplay = fmt.Sprintf(", user[%s]", h.machine.Username)
	}
	remoteLog.Infof("remote[%s]: creating ssh connection to %s:%d%s", h.name, h.machine.Address, sshPort(h.machine), userDisplay)

	client, err := h.connect()
	if err != nil {
		remoteLog.Errorf("remote[%s]: failed to launch on %s: %v", h.name, h.machine.Name, err)
		return err
	}
	h.client = client

	command := h.command
	if h.masterURI != "" {
		command = "env ROS_MASTER_URI=" + h.masterURI + " " + command
	}

	session, err := client.NewSession()
	if err != nil {
		return errors.Wrapf(err, "remote[%s]: opening ssh session", h.name)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return errors.Wrapf(err, "remote[%s]: stdout pipe", h.name)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return errors.Wrapf(err, "remote[%s]: stderr pipe", h.name)
	}

	remoteLog.Infof("launching remote roslaunch child with command: [%s]", command)
	if err := session.Start(command); err != nil {
		return errors.Wrapf(err, "remote[%s]: starting remote command", h.name)
	}
	h.session = session

	done := make(chan struct{})
	h.done = done
	go drainLines(stdout, os.Stdout, h.name)
	go drainLines(stderr, os.Stderr, h.name)
	go func() {
		waitErr := session.Wait()
		h.sem.Lock()
		h.exitCode = exitCodeFromSSH(waitErr)
		h.sem.Unlock()
		close(done)
	}()

	h.started = true
	remoteLog.Infof("remote[%s]: ssh connection created", h.name)
	return nil
}

func sshPort(m *plan.MachineSpec) int {
	if m.SSHPort == 0 {
		return defaultSSHPort
	}
	return m.SSHPort
}

// connect dials the machine, verifying its host key against a known-hosts
// database (global file preferred, then the user's), unless
// ROSLAUNCH_SSH_UNKNOWN=1.8 step 2.
func (h *RemoteHandle) connect() (*ssh.Client, error) {
	callback, err := h.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	username := h.machine.Username
	if username == "" {
		if u, uerr := currentUsername(); uerr == nil {
			username = u
		}
	}

	config := &ssh.ClientConfig{
		User:            username,
		HostKeyCallback: callback,
		Timeout:         time.Duration(h.machine.Timeout * float64(time.Second)),
	}
	if h.machine.Password != "" {
		config.Auth = append(config.Auth, ssh.Password(h.machine.Password))
	}

	addr := fmt.Sprintf("%s:%d", h.machine.Address, sshPort(h.machine))
	return ssh.Dial("tcp", addr, config)
}

func (h *RemoteHandle) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if h.allowUnknownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := globalKnownHosts
	if _, err := os.Stat(path); err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return nil, errors.New("process: cannot determine user known_hosts location")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	inner, err := knownhosts.New(path)
	if err != nil {
		return nil, actionableUnknownHostError(h.machine)
	}
	return wrapKnownHostsCallback(h.machine, inner), nil
}

// wrapKnownHostsCallback turns knownhosts' generic key-error into an
// actionable message when the host is simply unknown, and passes through
// any other verification failure untouched.
func wrapKnownHostsCallback(m *plan.MachineSpec, inner ssh.HostKeyCallback) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := inner(hostname, remote, key)
		if err == nil {
			return nil
		}
		if keyErr, ok := err.(*knownhosts.KeyError); ok && len(keyErr.Want) == 0 {
			return actionableUnknownHostError(m)
		}
		return err
	}
}

func actionableUnknownHostError(m *plan.MachineSpec) error {
	portStr := ""
	if sshPort(m) != defaultSSHPort {
		portStr = fmt.Sprintf("-p %d ", sshPort(m))
	}
	userStr := ""
	if m.Username != "" {
		userStr = m.Username + "@"
	}
	msg := fmt.Sprintf(
		"%s is not in your SSH known_hosts file\n"+
			"Please manually:\n"+
			"   ssh %s%s%s\n\n"+
			"then try roslaunching again.\n\n"+
			"If you wish to configure roslaunch to automatically accept unknown\n"+
			"hosts, please set the environment variable ROSLAUNCH_SSH_UNKNOWN=1\n",
		m.Address, portStr, userStr, m.Address)
	return errors.New(msg)
}

func currentUsername() (string, error) {
	if v := os.Getenv("USER"); v != "" {
		return v, nil
	}
	return "", errors.New("process: could not determine current user")
}

// IsRunning reports whether the remote command is still executing. Output
// is drained by the goroutines started in Start, not here.
func (h *RemoteHandle) IsRunning() bool {
	h.sem.Lock()
	defer h.sem.Unlock()
	if !h.started || h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *RemoteHandle) ExitCodeDescription() string {
	h.sem.Lock()
	defer h.sem.Unlock()
	if h.exitCode == -1 {
		return ""
	}
	if h.exitCode == 0 {
		return "process has finished cleanly"
	}
	return fmt.Sprintf("process has died [exit code: %d, cmd: %s]", h.exitCode, h.command)
}

// Restart always fails: remote processes do not support respawning, per
// closing paragraph.
func (h *RemoteHandle) Restart() error {
	return ErrRemoteRestartUnsupported
}

// Destroy tears down the SSH session and connection.
func (h *RemoteHandle) Destroy() {
	h.sem.Lock()
	defer h.sem.Unlock()
	if !h.started {
		return
	}
	if h.session != nil {
		_ = h.session.Close()
	}
	if h.client != nil {
		_ = h.client.Close()
	}
	h.started = false
}

// Wait blocks until the remote command has exited.
func (h *RemoteHandle) Wait() error {
	h.sem.Lock()
	done := h.done
	h.sem.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return nil
}

func exitCodeFromSSH(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}
