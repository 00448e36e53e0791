package monitor

import (
	"sync"
	"testing"

	"github.com/go-roslaunch/roslaunch/internal/process"
)

type fakeHandle struct {
	mu        sync.Mutex
	name      string
	required  bool
	respawn   bool
	delay     float64
	running   bool
	destroyed bool
	restarted int
	restartErr error
}

func (f *fakeHandle) Name() string { f.mu.Lock(); defer f.mu.Unlock(); return f.name }
func (f *fakeHandle) SetName(n string) { f.mu.Lock(); defer f.mu.Unlock(); f.name = n }
func (f *fakeHandle) IsRequired() bool { return f.required }
func (f *fakeHandle) ShouldRespawn() bool { return f.respawn }
func (f *fakeHandle) RespawnDelaySeconds() float64 { return f.delay }
func (f *fakeHandle) IsRunning() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.running }
func (f *fakeHandle) ExitCodeDescription() string { return "process has died [exit code: 1, cmd: x]" }
func (f *fakeHandle) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted++
	f.running = true
	return f.restartErr
}
func (f *fakeHandle) Destroy() { f.mu.Lock(); defer f.mu.Unlock(); f.destroyed = true; f.running = false }
func (f *fakeHandle) Wait() error { return nil }

var _ process.Handle = (*fakeHandle)(nil)

func TestMonitorNonRequiredDeathMovesToDeadWithoutRespawn(t *testing.T) {
	m := New()
	h := &fakeHandle{name: "/a", running: false}
	m.AddProcess(h)

	m.Monitor()

	if !h.destroyed {
		t.Error("expected dead, non-respawning handle to be destroyed")
	}
	if m.IsShutdown() {
		t.Error("non-required death should not trigger shutdown")
	}
}

func TestMonitorRespawnsAfterDelay(t *testing.T) {
	m := New()
	h := &fakeHandle{name: "/a", running: false, respawn: true, delay: 0}
	m.AddProcess(h)

	m.Monitor() // classifies as freshly died and, with a 0s delay, restarts it in the same cycle
	if h.destroyed {
		t.Error("respawning handle should not be destroyed")
	}

	m.Monitor() // the handle is running again, so no further restart happens
	if h.restarted != 1 {
		t.Errorf("expected 1 restart, got %d", h.restarted)
	}
	if h.Name() != "/a-2" {
		t.Errorf("expected renamed handle /a-2, got %q", h.Name())
	}
}

func TestMonitorRequiredDeathShutsDownAll(t *testing.T) {
	m := New()
	required := &fakeHandle{name: "/req", running: false, required: true}
	other := &fakeHandle{name: "/other", running: true}
	m.AddProcesses([]process.Handle{required, other})

	m.Monitor()

	if !m.IsShutdown() {
		t.Error("expected shutdown after required process death")
	}
	if !other.destroyed {
		t.Error("expected other process to be destroyed as part of shutdown")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := New()
	h := &fakeHandle{name: "/a", running: true}
	m.AddProcess(h)

	m.Shutdown()
	if !h.destroyed {
		t.Fatal("expected destroy on first shutdown")
	}
	h.destroyed = false
	m.Shutdown() // should no-op
	if h.destroyed {
		t.Error("expected second shutdown call to be a no-op")
	}
}

func TestOnShutdownCallbackFiresOnce(t *testing.T) {
	m := New()
	calls := 0
	m.OnShutdown(func() { calls++ })
	m.Shutdown()
	m.Shutdown()
	if calls != 1 {
		t.Errorf("expected exactly one callback invocation, got %d", calls)
	}
}
