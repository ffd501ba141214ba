package tts

import (
	"context"
	"time"
)

// Utterance is one piece of text to speak.
type Utterance struct {
	ID     string
	Text   string
	Locale string
	Rate   float64
	Pitch  float64
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is a playback lifecycle notification.
type Event struct {
	UtteranceID string
	Kind        EventKind
	At          time.Time
}

// Synthesizer is the contract for speaking text. Both channels are closed when
// the utterance finished or failed.
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance) (<-chan Event, <-chan error)
}
