// Package coordinator owns the application state and wires recognition,
// recording and translation together.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/languages"
	"github.com/loqalabs/loqa-interpret/internal/recognition"
	"github.com/loqalabs/loqa-interpret/internal/recorder"
	"github.com/loqalabs/loqa-interpret/internal/schedule"
	"github.com/loqalabs/loqa-interpret/internal/translation"
)

// RestartToken identifies the pending recognition restart after a source
// language change.
const RestartToken = "recognition.restart"

var ErrUnsupportedLanguage = errors.New("unsupported language")

type Options struct {
	SourceLanguage string
	TargetLanguage string
	SettleDelay    time.Duration
}

// State is the application state exposed to clients.
type State struct {
	SourceLanguage   string                      `json:"source_language"`
	TargetLanguage   string                      `json:"target_language"`
	AutoTranslate    bool                        `json:"auto_translate"`
	Listening        bool                        `json:"listening"`
	Restarting       bool                        `json:"restarting"`
	Transcript       recognition.TranscriptState `json:"transcript"`
	RecognitionError string                      `json:"recognition_error,omitempty"`
	Recorder         recorder.State              `json:"recorder"`
	Translation      translation.State           `json:"translation"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

type EventKind string

const (
	EventState       EventKind = "state"
	EventTranscript  EventKind = "transcript"
	EventTranslation EventKind = "translation"
	EventClip        EventKind = "clip"
)

// Event is delivered to subscribers after every change. Exactly one of the
// payload fields is set for transcript, translation and clip events.
type Event struct {
	Kind        EventKind
	State       State
	Transcript  *recognition.TranscriptState
	Translation *translation.Result
	Clip        *recorder.Clip
}

type Coordinator struct {
	recognizer *recognition.Manager
	recorder   *recorder.Manager
	translator *translation.Orchestrator
	sched      schedule.Scheduler
	settle     time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	source string
	target string

	subsMu sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func New(parent context.Context, opts Options, recognizer *recognition.Manager, rec *recorder.Manager, translator *translation.Orchestrator, sched schedule.Scheduler, logger *slog.Logger) (*Coordinator, error) {
	if !languages.Supported(opts.SourceLanguage) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, opts.SourceLanguage)
	}
	if !languages.Supported(opts.TargetLanguage) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, opts.TargetLanguage)
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		recognizer: recognizer,
		recorder:   rec,
		translator: translator,
		sched:      sched,
		settle:     opts.SettleDelay,
		logger:     logger.With(slog.String("component", "coordinator")),
		ctx:        ctx,
		cancel:     cancel,
		source:     opts.SourceLanguage,
		target:     opts.TargetLanguage,
		subs:       make(map[int]func(Event)),
	}
	translator.SetLanguages(opts.SourceLanguage, opts.TargetLanguage)

	recognizer.OnTranscript(c.transcriptChanged)
	translator.OnChange(c.translationApplied)
	rec.OnAudioRecorded(c.clipRecorded)
	return c, nil
}

// Subscribe registers fn for every event and returns a function that removes
// it. fn may be called from several goroutines.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subsMu.Unlock()
	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	source, target := c.source, c.target
	c.mu.Unlock()

	tr := c.translator.State()
	return State{
		SourceLanguage:   source,
		TargetLanguage:   target,
		AutoTranslate:    tr.AutoTranslate,
		Listening:        c.recognizer.Listening(),
		Restarting:       c.sched.Pending(RestartToken),
		Transcript:       c.recognizer.Transcript(),
		RecognitionError: c.recognizer.Err(),
		Recorder:         c.recorder.State(),
		Translation:      tr,
		UpdatedAt:        time.Now().UTC(),
	}
}

// SetSourceLanguage switches the recognition language. The transcript and
// translated text are cleared; an active session is stopped and restarted in
// the new language after the settle delay.
func (c *Coordinator) SetSourceLanguage(code string) error {
	if !languages.Supported(code) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	c.mu.Lock()
	if c.source == code {
		c.mu.Unlock()
		return nil
	}
	c.source = code
	target := c.target
	c.mu.Unlock()

	wasListening := c.recognizer.Listening() || c.sched.Cancel(RestartToken)
	if wasListening {
		c.recognizer.Stop()
	}
	c.recognizer.Reset()
	c.translator.SetLanguages(code, target)
	c.translator.Clear()
	if wasListening {
		c.sched.Schedule(c.settle, RestartToken, c.restart)
	}

	c.logger.Info("source language changed", slog.String("language", code), slog.Bool("restart", wasListening))
	c.publish(Event{Kind: EventState})
	return nil
}

// SetTargetLanguage changes the language of subsequent translations.
func (c *Coordinator) SetTargetLanguage(code string) error {
	if !languages.Supported(code) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	c.mu.Lock()
	c.target = code
	source := c.source
	c.mu.Unlock()

	c.translator.SetLanguages(source, code)
	c.logger.Info("target language changed", slog.String("language", code))
	c.publish(Event{Kind: EventState})
	return nil
}

func (c *Coordinator) SetAutoTranslate(enabled bool) {
	c.translator.SetAutoTranslate(enabled)
	c.publish(Event{Kind: EventState})
}

func (c *Coordinator) StartListening(ctx context.Context) error {
	c.sched.Cancel(RestartToken)
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()

	err := c.recognizer.Start(ctx, source)
	c.publish(Event{Kind: EventState})
	return err
}

// StopListening ends recognition, including a restart that is still waiting
// for the settle delay.
func (c *Coordinator) StopListening() {
	c.sched.Cancel(RestartToken)
	c.recognizer.Stop()
	c.publish(Event{Kind: EventState})
}

func (c *Coordinator) ResetTranscript() {
	c.recognizer.Reset()
}

func (c *Coordinator) SetInputText(text string) {
	c.translator.SetInputText(text)
	c.publish(Event{Kind: EventState})
}

// TranslateTypedText translates the current input text immediately.
func (c *Coordinator) TranslateTypedText(ctx context.Context) (string, error) {
	out, err := c.translator.TranslateTypedText(ctx)
	if err != nil {
		c.publish(Event{Kind: EventState})
	}
	return out, err
}

// TranslateInput sets the typed input to text and translates it in one step.
func (c *Coordinator) TranslateInput(ctx context.Context, text string) (string, error) {
	out, err := c.translator.TranslateInput(ctx, text)
	if err != nil || out == "" {
		c.publish(Event{Kind: EventState})
	}
	return out, err
}

func (c *Coordinator) StartRecording(ctx context.Context) error {
	err := c.recorder.StartRecording(ctx)
	c.publish(Event{Kind: EventState})
	return err
}

func (c *Coordinator) StopRecording(ctx context.Context) (*recorder.Clip, error) {
	return c.recorder.StopRecording(ctx)
}

// Close tears down every session owned by the coordinator.
func (c *Coordinator) Close() {
	c.sched.Cancel(RestartToken)
	c.cancel()
	c.recognizer.Close()
	c.recorder.Close()
	c.translator.Close()
}

func (c *Coordinator) restart() {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()

	if err := c.recognizer.Start(c.ctx, source); err != nil {
		c.logger.Warn("recognition restart failed", slog.String("language", source), slogError(err))
	}
	c.publish(Event{Kind: EventState})
}

func (c *Coordinator) transcriptChanged(ts recognition.TranscriptState) {
	c.translator.TranscriptChanged(ts.LiveText)
	c.publish(Event{Kind: EventTranscript, Transcript: &ts})
}

func (c *Coordinator) translationApplied(res translation.Result) {
	c.publish(Event{Kind: EventTranslation, Translation: &res})
}

func (c *Coordinator) clipRecorded(clip recorder.Clip) {
	c.publish(Event{Kind: EventClip, Clip: &clip})
}

func (c *Coordinator) publish(evt Event) {
	c.subsMu.RLock()
	if len(c.subs) == 0 {
		c.subsMu.RUnlock()
		return
	}
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.RUnlock()

	evt.State = c.Snapshot()
	for _, fn := range subs {
		fn(evt)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
