// Package schedule provides token-keyed cancellable timers. Scheduling a token
// that is already pending replaces it, which is the building block for
// trailing-edge debounce and settle delays.
package schedule

import (
	"sync"
	"time"
)

// Scheduler runs fn once after delay unless the token is cancelled or
// rescheduled first.
type Scheduler interface {
	Schedule(delay time.Duration, token string, fn func())
	Cancel(token string) bool
	Pending(token string) bool
}

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// TimerScheduler is the wall-clock Scheduler.
type TimerScheduler struct {
	mu      sync.Mutex
	gen     uint64
	pending map[string]timerEntry
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{pending: make(map[string]timerEntry)}
}

func (s *TimerScheduler) Schedule(delay time.Duration, token string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[token]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	// A timer that already fired but lost the race for the lock sees a newer
	// generation and returns without running.
	t := time.AfterFunc(delay, func() {
		s.mu.Lock()
		entry, ok := s.pending[token]
		if !ok || entry.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.pending, token)
		s.mu.Unlock()
		fn()
	})
	s.pending[token] = timerEntry{timer: t, gen: gen}
}

func (s *TimerScheduler) Cancel(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[token]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.pending, token)
	return true
}

func (s *TimerScheduler) Pending(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[token]
	return ok
}

// Close cancels every pending timer.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, token)
	}
}
