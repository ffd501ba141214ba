package recognition

import (
	"context"
	"fmt"
	"sync"
)

// MockService is an in-process dictation service. Sessions only produce what
// the caller feeds them through Emit and Fail.
type MockService struct {
	mu       sync.Mutex
	sessions []*MockSession
	openErr  error
}

func NewMockService() *MockService {
	return &MockService{}
}

// FailOpen makes subsequent Open calls return err; nil restores success.
func (s *MockService) FailOpen(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

func (s *MockService) Open(_ context.Context, opts Options) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	sess := &MockSession{
		id:      fmt.Sprintf("mock-%d", len(s.sessions)+1),
		opts:    opts,
		results: make(chan Event),
		errs:    make(chan error),
	}
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

// Sessions returns every session opened so far, oldest first.
func (s *MockService) Sessions() []*MockSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MockSession(nil), s.sessions...)
}

// Last returns the most recently opened session, or nil.
func (s *MockService) Last() *MockSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return nil
	}
	return s.sessions[len(s.sessions)-1]
}

type MockSession struct {
	id      string
	opts    Options
	results chan Event
	errs    chan error

	mu     sync.Mutex
	closed bool
}

func (s *MockSession) ID() string { return s.id }
func (s *MockSession) Options() Options { return s.opts }
func (s *MockSession) Results() <-chan Event { return s.results }
func (s *MockSession) Errors() <-chan error { return s.errs }

// Emit delivers evt and reports false if the session is already closed.
func (s *MockSession) Emit(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.results <- evt
	return true
}

// Fail delivers a service error with the given reason.
func (s *MockSession) Fail(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.errs <- &RuntimeError{Reason: reason}
	return true
}

func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.results)
	close(s.errs)
	return nil
}
