// Package admission caps the number of concurrent connections accepted from
// a single client IP, independent of any global connection limit.
package admission

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// MaxPerIP is the number of concurrent connections one client IP may hold
// open at a time. A connection beyond this limit is answered with 429 and
// closed before any request on it is read.
const MaxPerIP = 100

// Table tracks one semaphore per IP, created lazily on first use and
// removed once its last holder releases.
type Table struct {
	mu    sync.Mutex
	slots map[string]*ipSlot
}

type ipSlot struct {
	sem   *semaphore.Weighted
	count int
}

// New returns an empty admission table.
func New() *Table {
	return &Table{slots: make(map[string]*ipSlot)}
}

// TryAcquire reserves one slot for ip, returning false if ip already holds
// MaxPerIP connections. An empty ip bypasses admission control entirely;
// callers pass "" when the peer address is not an IP address (for example
// a Unix-domain socket).
func (t *Table) TryAcquire(ip string) bool {
	if ip == "" {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[ip]
	if !ok {
		s = &ipSlot{sem: semaphore.NewWeighted(MaxPerIP)}
		t.slots[ip] = s
	}
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.count++
	return true
}

// Release returns the slot held for ip. It is a no-op for an empty ip or an
// ip with no outstanding slot, and removes the per-IP entry once the last
// slot is released.
func (t *Table) Release(ip string) {
	if ip == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[ip]
	if !ok {
		return
	}
	s.sem.Release(1)
	s.count--
	if s.count <= 0 {
		delete(t.slots, ip)
	}
}

// InUse reports the current slot count held for ip. Intended for tests and
// monitoring.
func (t *Table) InUse(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[ip]
	if !ok {
		return 0
	}
	return s.count
}
