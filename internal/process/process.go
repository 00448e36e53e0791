// Package process implements the local and remote process handles:
// argv/env/cwd computation, line-buffered output routing, and the
// restart/destroy/is-running contract the supervisor in internal/monitor
// drives.
package process

import (
	"github.com/pkg/errors"
)

// ErrRemoteRestartUnsupported is returned by RemoteHandle.Restart: remote
// processes never support respawning.8's closing
// paragraph.
var ErrRemoteRestartUnsupported = errors.New("process: remote processes do not support restart")

// Handle is the common contract the supervisor in internal/monitor drives,
// implemented by both LocalHandle and RemoteHandle.
type Handle interface {
	Name() string
	SetName(name string)
	IsRequired() bool
	ShouldRespawn() bool
	RespawnDelaySeconds() float64
	IsRunning() bool
	ExitCodeDescription() string
	Restart() error
	Destroy()
	Wait() error
}
