package substitution

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"
)

// AnonMemo is the process-global, write-once-per-id memo backing $(anon id):
// each id resolves once to "id_<hostname>_<pid>_<random>" and every later
// lookup of the same id returns that same value. Safe for concurrent use by
// multiple compiler goroutines.
type AnonMemo struct {
	mu    sync.Mutex
	cache map[string]string
	rng   *rand.Rand
}

// NewAnonMemo creates an empty memo. One should be shared across an entire
// launch run (including every included file), never per-file.
func NewAnonMemo() *AnonMemo {
	return &AnonMemo{
		cache: make(map[string]string),
		rng:   rand.New(rand.NewSource(randSeed())),
	}
}

// Get returns the memoized anonymous name for id, generating and caching it
// on first use.
func (m *AnonMemo) Get(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.cache[id]; ok {
		return name
	}
	name := m.generate(id)
	m.cache[id] = name
	return name
}

func (m *AnonMemo) generate(id string) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	pid := os.Getpid()
	n := m.rng.Int63n(1 << 30)
	raw := fmt.Sprintf("%s_%s_%d_%d", id, hostname, pid, n)
	return sanitizeAnonID(raw)
}

func randSeed() int64 {
	return time.Now().UnixNano()
}
