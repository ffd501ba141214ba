package recorder

import (
	"context"
	"errors"
	"time"
)

// ClipMIMEType tags every finished clip.
const ClipMIMEType = "audio/wav"

// ErrDeviceUnavailable wraps capture device failures such as denied
// permission or a missing device.
var ErrDeviceUnavailable = errors.New("audio capture device unavailable")

// Clip is the immutable result of one recording session.
type Clip struct {
	ID        string    `json:"id"`
	MIMEType  string    `json:"mime_type"`
	Data      []byte    `json:"-"`
	Size      int       `json:"size"`
	Chunks    int       `json:"chunks"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
}

func (c Clip) copy() Clip {
	c.Data = append([]byte(nil), c.Data...)
	return c
}

// Stream is an acquired capture device. Chunks is closed by the device after
// the last chunk once Stop has been called or the device went away.
type Stream interface {
	Chunks() <-chan []byte
	// Stop ends capture and releases the device tracks.
	Stop()
}

// Device abstracts audio capture backends.
type Device interface {
	Acquire(ctx context.Context, timeslice time.Duration) (Stream, error)
}

// State is a snapshot of the recorder.
type State struct {
	Recording bool   `json:"recording"`
	Chunks    int    `json:"chunks"`
	Bytes     int    `json:"bytes"`
	Clip      *Clip  `json:"clip,omitempty"`
	Error     string `json:"error,omitempty"`
}
