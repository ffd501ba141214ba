package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Manager owns at most one dictation session and maintains the live
// transcript produced by it.
type Manager struct {
	svc    Service
	logger *slog.Logger

	// opMu serializes Start and Stop.
	opMu sync.Mutex
	// notifyMu keeps transcript writes and their notifications in one order.
	notifyMu sync.Mutex

	mu         sync.Mutex
	session    Session
	language   string
	transcript TranscriptState
	lastErr    string
	onChange   func(TranscriptState)

	wg     sync.WaitGroup
	events metric.Int64Counter
}

// NewManager builds a manager. A nil svc means the platform has no dictation
// service; Start then fails with ErrUnsupportedCapability.
func NewManager(svc Service, logger *slog.Logger) *Manager {
	m := &Manager{
		svc:    svc,
		logger: logger.With(slog.String("component", "recognition")),
	}
	counter, err := otel.Meter("github.com/loqalabs/loqa-interpret/recognition").Int64Counter(
		"loqa.recognition.events", metric.WithDescription("Recognition result events processed"))
	if err != nil {
		m.logger.Warn("failed to initialize metrics", slogError(err))
	}
	m.events = counter
	return m
}

// OnTranscript registers the subscriber notified after every transcript
// change, in delivery order.
func (m *Manager) OnTranscript(fn func(TranscriptState)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start opens a session bound to language. It is a no-op while listening.
func (m *Manager) Start(ctx context.Context, language string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return nil
	}
	if m.svc == nil {
		m.lastErr = "Speech recognition is not supported on this platform."
		m.mu.Unlock()
		return ErrUnsupportedCapability
	}
	m.mu.Unlock()

	sess, err := m.svc.Open(ctx, Options{Language: language, Continuous: true, InterimResults: true})
	if err != nil {
		m.mu.Lock()
		m.lastErr = "Failed to start speech recognition: " + err.Error()
		m.mu.Unlock()
		m.logger.Warn("recognition start failed", slog.String("language", language), slogError(err))
		if errors.Is(err, ErrUnsupportedCapability) {
			return err
		}
		return fmt.Errorf("start recognition: %w", err)
	}

	m.mu.Lock()
	m.session = sess
	m.language = language
	m.lastErr = ""
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pump(sess)

	m.logger.Info("recognition started", slog.String("session", sess.ID()), slog.String("language", language))
	return nil
}

// Stop ends the active session, if any.
func (m *Manager) Stop() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()
	if sess == nil {
		return
	}

	if err := sess.Close(); err != nil {
		m.logger.Warn("recognition session close failed", slog.String("session", sess.ID()), slogError(err))
	}
	m.logger.Info("recognition stopped", slog.String("session", sess.ID()))
}

// Reset clears the live transcript without touching the session.
func (m *Manager) Reset() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	m.transcript = TranscriptState{}
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(TranscriptState{})
	}
}

// Listening reports whether a session is active.
func (m *Manager) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Language returns the language of the active or most recent session.
func (m *Manager) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

func (m *Manager) Transcript() TranscriptState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// Err returns the last error description, or "".
func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close stops the session and waits for event delivery to finish.
func (m *Manager) Close() {
	m.Stop()
	m.wg.Wait()
}

func (m *Manager) pump(sess Session) {
	defer m.wg.Done()
	results := sess.Results()
	errs := sess.Errors()
	for results != nil || errs != nil {
		select {
		case evt, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			m.handleResult(sess, evt)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.handleError(sess, err)
		}
	}

	// The service ended the session on its own.
	m.mu.Lock()
	if m.session == sess {
		m.session = nil
		m.logger.Info("recognition session ended", slog.String("session", sess.ID()))
	}
	m.mu.Unlock()
}

func (m *Manager) handleResult(sess Session, evt Event) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	state := Merge(evt)
	m.transcript = state
	fn := m.onChange
	language := m.language
	m.mu.Unlock()

	if m.events != nil {
		m.events.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("language", language),
			attribute.Bool("final", state.IsFinal),
		))
	}
	if fn != nil {
		fn(state)
	}
}

func (m *Manager) handleError(sess Session, err error) {
	var rtErr *RuntimeError
	if !errors.As(err, &rtErr) {
		rtErr = &RuntimeError{Reason: err.Error()}
	}
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	m.lastErr = rtErr.Error()
	m.mu.Unlock()
	m.logger.Warn("recognition error", slog.String("session", sess.ID()), slog.String("reason", rtErr.Reason))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
