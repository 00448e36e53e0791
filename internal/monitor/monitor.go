// Package monitor implements the process supervisor: active/dead/respawning
// sets, a try-lock-or-skip monitoring cycle, the required-dies-fails-all
// banner, respawn delay, per-run respawn counter naming, and idempotent
// shutdown.
package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-roslaunch/roslaunch/internal/logging"
	"github.com/go-roslaunch/roslaunch/internal/process"
)

var log = logging.Named("roslaunch.processmonitor")

// CycleInterval is the sleep between monitoring cycles in the main loop.
const CycleInterval = 100 * time.Millisecond

type deathRecord struct {
	handle  process.Handle
	diedAt  time.Time
	counter int
}

// Monitor owns the active/dead/respawning sets of process handles.
type Monitor struct {
	mu sync.Mutex

	active      []process.Handle
	dead        map[process.Handle]bool
	respawning  map[process.Handle]*deathRecord
	shutdownSig bool

	onShutdown func() // invoked once, synchronously, the first time Shutdown runs
}

// New builds an empty Monitor.
func New() *Monitor {
	return &Monitor{
		dead:       map[process.Handle]bool{},
		respawning: map[process.Handle]*deathRecord{},
	}
}

// AddProcess registers h for monitoring.
func (m *Monitor) AddProcess(h process.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, h)
}

// AddProcesses registers every handle in hs for monitoring.
func (m *Monitor) AddProcesses(hs []process.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, hs...)
}

// IsShutdown reports whether the monitor has shut down (or detected the
// need to).9.
func (m *Monitor) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownSig
}

// Monitor runs one monitoring cycle.9 steps 1-4. If the
// mutex is already held by a concurrent cycle or Shutdown, the cycle is
// skipped entirely rather than blocking.
func (m *Monitor) Monitor() {
	if !m.mu.TryLock() {
		return
	}
	defer m.mu.Unlock()

	if m.shutdownSig {
		return
	}

	var freshlyDied []process.Handle
	for _, h := range m.active {
		if m.dead[h] {
			continue
		}
		if h.IsRunning() {
			continue
		}

		desc := h.ExitCodeDescription()
		if h.IsRequired() {
			m.renderRequiredDiedBanner(h, desc)
			m.shutdownLocked()
			return
		}
		if _, respawning := m.respawning[h]; respawning {
			continue
		}
		log.Infof("[%s]: %s", h.Name(), desc)
		freshlyDied = append(freshlyDied, h)
	}

	for _, h := range freshlyDied {
		if h.ShouldRespawn() {
			m.respawning[h] = &deathRecord{handle: h, diedAt: time.Now(), counter: 1}
		} else {
			h.Destroy()
			m.dead[h] = true
		}
	}

	for h, rec := range m.respawning {
		if time.Since(rec.diedAt).Seconds() < h.RespawnDelaySeconds() {
			continue
		}
		rec.counter++
		newName := renameForRespawn(h.Name(), rec.counter)
		h.SetName(newName)
		log.Infof("[%s] restarting process", newName)
		if err := h.Restart(); err != nil {
			log.Errorf("restart of process [%s] failed: %v", newName, err)
		}
		delete(m.respawning, h)
	}
}

// renameForRespawn implements the naming rule: the first launch carries an
// implicit "<base>-1" suffix (callers construct handles with that name
// already), and every respawn increments the trailing counter. counter is
// used only when name carries no numeric tail.
func renameForRespawn(name string, counter int) string {
	base := name
	if idx := strings.LastIndex(name, "-"); idx >= 0 {
		if n, err := strconv.Atoi(name[idx+1:]); err == nil {
			base = name[:idx]
			counter = n + 1
		}
	}
	return fmt.Sprintf("%s-%d", base, counter)
}

func (m *Monitor) renderRequiredDiedBanner(h process.Handle, desc string) {
	bar := strings.Repeat("=", 80)
	log.Error(bar)
	log.Errorf("REQUIRED process [%s] has died!", h.Name())
	log.Error(desc)
	log.Error("Initiating shutdown!")
	log.Error(bar)
}

// Shutdown stops every still-running handle and waits for each, matching
// idempotent shutdown policy: acquires the mutex (blocking)
// and no-ops if already shut down.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownLocked()
}

func (m *Monitor) shutdownLocked() {
	if m.shutdownSig {
		return
	}
	for _, h := range m.active {
		if h.IsRunning() {
			log.Infof("[%s] killing on exit", h.Name())
			h.Destroy()
		}
	}
	for _, h := range m.active {
		_ = h.Wait()
	}
	m.shutdownSig = true
	if m.onShutdown != nil {
		m.onShutdown()
	}
}

// OnShutdown registers a callback invoked exactly once, synchronously,
// the first time this monitor transitions to shut down.
func (m *Monitor) OnShutdown(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = fn
}
