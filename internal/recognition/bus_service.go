package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusService drives a dictation service running on an edge device. Sessions
// are opened with a request on dictation.control and results arrive on
// per-session subjects.
type BusService struct {
	bus          *bus.Client
	startTimeout time.Duration
	logger       *slog.Logger
}

func NewBusService(busClient *bus.Client, startTimeout time.Duration, logger *slog.Logger) *BusService {
	if startTimeout <= 0 {
		startTimeout = 2 * time.Second
	}
	return &BusService{
		bus:          busClient,
		startTimeout: startTimeout,
		logger:       logger.With(slog.String("component", "recognition-bus")),
	}
}

func (s *BusService) Open(ctx context.Context, opts Options) (Session, error) {
	if !s.bus.Healthy() {
		return nil, errors.New("bus not connected")
	}

	sess := &busSession{
		id:      uuid.NewString(),
		bus:     s.bus,
		logger:  s.logger,
		results: make(chan Event, 16),
		errs:    make(chan error, 4),
	}

	conn := s.bus.Conn()
	resultSub, err := conn.Subscribe(protocol.SubjectDictationResultPrefix+"."+sess.id, sess.handleResult)
	if err != nil {
		return nil, fmt.Errorf("subscribe dictation results: %w", err)
	}
	sess.subs = append(sess.subs, resultSub)
	errorSub, err := conn.Subscribe(protocol.SubjectDictationErrorPrefix+"."+sess.id, sess.handleError)
	if err != nil {
		sess.teardown()
		return nil, fmt.Errorf("subscribe dictation errors: %w", err)
	}
	sess.subs = append(sess.subs, errorSub)

	reqCtx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	var reply protocol.ControlReply
	err = s.bus.RequestJSON(reqCtx, protocol.SubjectDictationControl, protocol.DictationControl{
		SessionID:      sess.id,
		Action:         protocol.ActionStart,
		Language:       opts.Language,
		Continuous:     opts.Continuous,
		InterimResults: opts.InterimResults,
		Timestamp:      time.Now().UTC(),
	}, &reply)
	if err != nil {
		sess.teardown()
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ErrUnsupportedCapability
		}
		return nil, fmt.Errorf("request dictation start: %w", err)
	}
	if !reply.OK {
		sess.teardown()
		return nil, fmt.Errorf("dictation start rejected: %s", reply.Error)
	}
	return sess, nil
}

type busSession struct {
	id      string
	bus     *bus.Client
	logger  *slog.Logger
	subs    []*nats.Subscription
	results chan Event
	errs    chan error

	mu     sync.Mutex
	closed bool
}

func (s *busSession) ID() string            { return s.id }
func (s *busSession) Results() <-chan Event { return s.results }
func (s *busSession) Errors() <-chan error  { return s.errs }

func (s *busSession) handleResult(msg *nats.Msg) {
	var result protocol.DictationResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		s.logger.Warn("failed to decode dictation result", slogError(err))
		return
	}
	evt := Event{ResultIndex: result.ResultIndex, Results: make([]Segment, 0, len(result.Results))}
	for _, seg := range result.Results {
		evt.Results = append(evt.Results, Segment{Transcript: seg.Transcript, Final: seg.Final})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.results <- evt
}

func (s *busSession) handleError(msg *nats.Msg) {
	var report protocol.DictationError
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		s.logger.Warn("failed to decode dictation error", slogError(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errs <- &RuntimeError{Reason: report.Error}
}

func (s *busSession) teardown() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *busSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.bus.PublishJSON(protocol.SubjectDictationControl, protocol.DictationControl{
		SessionID: s.id,
		Action:    protocol.ActionStop,
		Timestamp: time.Now().UTC(),
	})
	s.teardown()

	s.mu.Lock()
	s.closed = true
	close(s.results)
	close(s.errs)
	s.mu.Unlock()
	return err
}
