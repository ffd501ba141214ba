package recognition

import (
	"context"
	"errors"
)

// ErrUnsupportedCapability is returned when no dictation service is available.
var ErrUnsupportedCapability = errors.New("speech recognition is not supported")

// RuntimeError is a failure reported by an active dictation session.
type RuntimeError struct {
	Reason string
}

func (e *RuntimeError) Error() string {
	return "error occurred in recognition: " + e.Reason
}

// Segment is one recognized fragment.
type Segment struct {
	Transcript string
	Final      bool
}

// Event is a batch delivered by the dictation service. Results is the
// cumulative result list of the session; entries from ResultIndex onward are
// the ones covered by this event.
type Event struct {
	ResultIndex int
	Results     []Segment
}

// Options configures a dictation session.
type Options struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// Session is an open dictation session. Results and Errors are closed by the
// session once it has ended.
type Session interface {
	ID() string
	Results() <-chan Event
	Errors() <-chan error
	Close() error
}

// Service abstracts dictation backends.
type Service interface {
	Open(ctx context.Context, opts Options) (Session, error)
}

// TranscriptState is the live transcript.
type TranscriptState struct {
	LiveText string `json:"live_text"`
	IsFinal  bool   `json:"is_final"`
}
