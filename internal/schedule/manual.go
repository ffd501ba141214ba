package schedule

import (
	"sort"
	"sync"
	"time"
)

type manualEntry struct {
	token    string
	deadline time.Duration
	seq      uint64
	fn       func()
}

// Manual is a virtual-time Scheduler. Nothing fires until Advance moves the
// clock past an entry's deadline.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending map[string]manualEntry
}

func NewManual() *Manual {
	return &Manual{pending: make(map[string]manualEntry)}
}

func (m *Manual) Schedule(delay time.Duration, token string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.pending[token] = manualEntry{token: token, deadline: m.now + delay, seq: m.seq, fn: fn}
}

func (m *Manual) Cancel(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[token]
	delete(m.pending, token)
	return ok
}

// Pending reports whether token is scheduled and not yet fired.
func (m *Manual) Pending(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[token]
	return ok
}

// Now returns the virtual time elapsed since construction.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves virtual time forward by d, running due callbacks in deadline
// order. Callbacks run without the lock held and may schedule new entries;
// those fire in the same call if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due []manualEntry
		for _, e := range m.pending {
			if e.deadline <= target {
				due = append(due, e)
			}
		}
		if len(due) == 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].deadline == due[j].deadline {
				return due[i].seq < due[j].seq
			}
			return due[i].deadline < due[j].deadline
		})
		next := due[0]
		delete(m.pending, next.token)
		m.now = next.deadline
		m.mu.Unlock()
		next.fn()
	}
}
