package recorder

import (
	"context"
	"sync"
	"time"
)

// MockDevice is an in-process capture device. Tests push chunks into the
// active stream with Push.
type MockDevice struct {
	mu       sync.Mutex
	denyErr  error
	stream   *mockStream
	acquired int
	released int
}

func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// Deny makes subsequent Acquire calls fail with err; nil restores access.
func (d *MockDevice) Deny(err error) {
	d.mu.Lock()
	d.denyErr = err
	d.mu.Unlock()
}

func (d *MockDevice) Acquire(_ context.Context, _ time.Duration) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denyErr != nil {
		return nil, d.denyErr
	}
	s := &mockStream{device: d, chunks: make(chan []byte)}
	d.stream = s
	d.acquired++
	return s, nil
}

// Push delivers chunks to the active stream in order. It returns false when
// no stream is capturing.
func (d *MockDevice) Push(chunks ...[]byte) bool {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s == nil {
		return false
	}
	for _, c := range chunks {
		if !s.send(c) {
			return false
		}
	}
	return true
}

// Acquired and Released count device acquisitions and releases.
func (d *MockDevice) Acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

func (d *MockDevice) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

type mockStream struct {
	device *MockDevice
	chunks chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *mockStream) Chunks() <-chan []byte { return s.chunks }

func (s *mockStream) send(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.chunks <- chunk
	return true
}

func (s *mockStream) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.chunks)
	s.mu.Unlock()

	s.device.mu.Lock()
	if s.device.stream == s {
		s.device.stream = nil
	}
	s.device.released++
	s.device.mu.Unlock()
}
