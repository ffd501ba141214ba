package tts

import (
	"context"
	"sync"
	"time"
)

// MockSynth records utterances and reports them as spoken immediately.
type MockSynth struct {
	mu      sync.Mutex
	spoken  []Utterance
	failErr error
}

func NewMockSynth() *MockSynth {
	return &MockSynth{}
}

// FailWith makes subsequent utterances fail with err; nil restores success.
func (m *MockSynth) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Spoken returns the utterances received so far.
func (m *MockSynth) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

func (m *MockSynth) Speak(ctx context.Context, u Utterance) (<-chan Event, <-chan error) {
	events := make(chan Event, 2)
	errs := make(chan error, 1)

	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	failErr := m.failErr
	m.mu.Unlock()

	go func() {
		defer close(events)
		defer close(errs)
		if err := ctx.Err(); err != nil {
			errs <- err
			return
		}
		if failErr != nil {
			errs <- failErr
			return
		}
		events <- Event{UtteranceID: u.ID, Kind: EventStarted, At: time.Now().UTC()}
		events <- Event{UtteranceID: u.ID, Kind: EventEnded, At: time.Now().UTC()}
	}()
	return events, errs
}
