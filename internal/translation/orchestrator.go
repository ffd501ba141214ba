package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DebounceToken identifies the pending auto-translation in the scheduler.
const DebounceToken = "translate.debounce"

// Speaker plays a finished translation. Implementations must not block.
type Speaker interface {
	Speak(text, locale string)
}

// Options seeds the orchestrator.
type Options struct {
	SourceLanguage string
	TargetLanguage string
	AutoTranslate  bool
	Debounce       time.Duration
}

// State is a snapshot of the translation side of the application.
type State struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	AutoTranslate  bool   `json:"auto_translate"`
	InputText      string `json:"input_text"`
	TranslatedText string `json:"translated_text"`
	Pending        bool   `json:"pending"`
	InFlight       int    `json:"in_flight"`
	Sequence       uint64 `json:"sequence"`
	Error          string `json:"error,omitempty"`
}

// Result describes a translation that was applied to the state.
type Result struct {
	Sequence       uint64
	SourceText     string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	Manual         bool
	At             time.Time
}

// Orchestrator debounces transcript changes into translation requests,
// applies results in issue order and hands them to the speaker.
type Orchestrator struct {
	translator Translator
	speaker    Speaker
	sched      schedule.Scheduler
	debounce   time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	source     string
	target     string
	auto       bool
	transcript string
	input      string
	translated string
	lastErr    string
	issued     uint64
	applied    uint64
	shown      uint64
	epoch      uint64
	inFlight   int
	onChange   func(Result)

	// deliverMu orders speaker and OnChange delivery by sequence.
	deliverMu sync.Mutex

	tracer    trace.Tracer
	requests  metric.Int64Counter
	failures  metric.Int64Counter
	stale     metric.Int64Counter
	latencyMS metric.Float64Histogram
}

func NewOrchestrator(parent context.Context, opts Options, translator Translator, speaker Speaker, sched schedule.Scheduler, logger *slog.Logger) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	o := &Orchestrator{
		translator: translator,
		speaker:    speaker,
		sched:      sched,
		debounce:   opts.Debounce,
		logger:     logger.With(slog.String("component", "translation")),
		ctx:        ctx,
		cancel:     cancel,
		source:     opts.SourceLanguage,
		target:     opts.TargetLanguage,
		auto:       opts.AutoTranslate,
		tracer:     otel.Tracer("github.com/loqalabs/loqa-interpret/translation"),
	}
	o.initMetrics()
	return o
}

func (o *Orchestrator) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/loqa-interpret/translation")
	var err error
	if o.requests, err = meter.Int64Counter("loqa.translation.requests", metric.WithDescription("Translation requests issued")); err != nil {
		o.logger.Warn("failed to initialize metrics", slogError(err))
	}
	if o.failures, err = meter.Int64Counter("loqa.translation.failures", metric.WithDescription("Translation requests that failed")); err != nil {
		o.logger.Warn("failed to initialize metrics", slogError(err))
	}
	if o.stale, err = meter.Int64Counter("loqa.translation.stale", metric.WithDescription("Translation responses dropped because a newer one was applied")); err != nil {
		o.logger.Warn("failed to initialize metrics", slogError(err))
	}
	if o.latencyMS, err = meter.Float64Histogram("loqa.translation.latency", metric.WithUnit("ms"), metric.WithDescription("Translation request latency")); err != nil {
		o.logger.Warn("failed to initialize metrics", slogError(err))
	}
}

// OnChange registers the subscriber notified after each applied translation.
func (o *Orchestrator) OnChange(fn func(Result)) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// TranscriptChanged restarts the debounce window when text differs from the
// current transcript. Repeated deliveries of the same value leave a pending
// window alone.
func (o *Orchestrator) TranscriptChanged(text string) {
	o.mu.Lock()
	if text == o.transcript {
		o.mu.Unlock()
		return
	}
	o.transcript = text
	o.mu.Unlock()
	o.reschedule()
}

// SetLanguages updates the language pair used by subsequent requests and
// re-arms the debounce window for the current transcript.
func (o *Orchestrator) SetLanguages(source, target string) {
	o.mu.Lock()
	changed := o.source != source || o.target != target
	o.source = source
	o.target = target
	o.mu.Unlock()
	if changed {
		o.reschedule()
	}
}

// SetAutoTranslate toggles the debounce path. Disabling it cancels any
// pending request; the manual path is unaffected.
func (o *Orchestrator) SetAutoTranslate(enabled bool) {
	o.mu.Lock()
	o.auto = enabled
	o.mu.Unlock()
	o.reschedule()
}

func (o *Orchestrator) SetInputText(text string) {
	o.mu.Lock()
	o.input = text
	o.mu.Unlock()
}

// Clear empties the translated text and discards responses of requests
// issued before the call.
func (o *Orchestrator) Clear() {
	o.sched.Cancel(DebounceToken)
	o.mu.Lock()
	o.transcript = ""
	o.translated = ""
	o.lastErr = ""
	o.applied = o.issued
	o.epoch++
	o.mu.Unlock()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		SourceLanguage: o.source,
		TargetLanguage: o.target,
		AutoTranslate:  o.auto,
		InputText:      o.input,
		TranslatedText: o.translated,
		Pending:        o.sched.Pending(DebounceToken),
		InFlight:       o.inFlight,
		Sequence:       o.applied,
		Error:          o.lastErr,
	}
}

// Translate translates text between the given languages and applies the
// result. Empty text yields "" without contacting the service.
func (o *Orchestrator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return o.translate(ctx, text, source, target, true)
}

// TranslateTypedText translates the current input text with the current
// language pair, bypassing the debounce window.
func (o *Orchestrator) TranslateTypedText(ctx context.Context) (string, error) {
	o.mu.Lock()
	text, source, target := o.input, o.source, o.target
	o.mu.Unlock()
	return o.translate(ctx, text, source, target, true)
}

// TranslateInput stores text as the typed input and translates it with the
// current language pair. Concurrent callers each get the translation of their
// own text.
func (o *Orchestrator) TranslateInput(ctx context.Context, text string) (string, error) {
	o.mu.Lock()
	o.input = text
	source, target := o.source, o.target
	o.mu.Unlock()
	return o.translate(ctx, text, source, target, true)
}

// Close cancels pending and in-flight requests and waits for them.
func (o *Orchestrator) Close() {
	o.sched.Cancel(DebounceToken)
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) reschedule() {
	o.mu.Lock()
	fire := !o.closed && o.auto && strings.TrimSpace(o.transcript) != ""
	o.mu.Unlock()

	if !fire {
		o.sched.Cancel(DebounceToken)
		return
	}
	o.sched.Schedule(o.debounce, DebounceToken, o.fire)
}

func (o *Orchestrator) fire() {
	o.mu.Lock()
	if o.closed || !o.auto {
		o.mu.Unlock()
		return
	}
	text, source, target := o.transcript, o.source, o.target
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	if _, err := o.translate(o.ctx, text, source, target, false); err != nil {
		o.logger.Warn("auto translation failed", slogError(err))
	}
}

func (o *Orchestrator) translate(ctx context.Context, text, source, target string, manual bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	o.mu.Lock()
	o.issued++
	seq := o.issued
	o.inFlight++
	o.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.String("target", target),
		attribute.Bool("manual", manual),
	}
	ctx, span := o.tracer.Start(ctx, "translation.request", trace.WithAttributes(append(attrs, attribute.Int64("sequence", int64(seq)))...))
	defer span.End()
	if o.requests != nil {
		o.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	started := time.Now()
	out, err := o.translator.Translate(ctx, text, source, target)
	if o.latencyMS != nil {
		o.latencyMS.Record(ctx, float64(time.Since(started).Microseconds())/1000, metric.WithAttributes(attrs...))
	}
	if err != nil && !errors.Is(err, ErrTranslationRequestFailed) {
		err = fmt.Errorf("%w: %w", ErrTranslationRequestFailed, err)
	}

	o.mu.Lock()
	o.inFlight--
	if seq <= o.applied {
		o.mu.Unlock()
		if o.stale != nil {
			o.stale.Add(ctx, 1)
		}
		span.SetAttributes(attribute.Bool("stale", true))
		o.logger.Debug("dropping stale translation", slog.Uint64("sequence", seq))
		return out, err
	}
	o.applied = seq
	if err != nil {
		o.lastErr = "Translation failed: " + err.Error()
		o.mu.Unlock()
		if o.failures != nil {
			o.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	o.translated = out
	o.lastErr = ""
	o.shown = seq
	epoch := o.epoch
	o.mu.Unlock()

	o.logger.Info("translation applied", slog.Uint64("sequence", seq), slog.String("source", source), slog.String("target", target), slog.Bool("manual", manual))
	o.deliver(Result{
		Sequence:       seq,
		SourceText:     text,
		TranslatedText: out,
		SourceLanguage: source,
		TargetLanguage: target,
		Manual:         manual,
		At:             time.Now().UTC(),
	}, epoch)
	return out, nil
}

// deliver hands res to the speaker and the OnChange subscriber unless a newer
// translation was applied or the state was cleared in the meantime.
func (o *Orchestrator) deliver(res Result, epoch uint64) {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	current := res.Sequence == o.shown && epoch == o.epoch
	fn := o.onChange
	o.mu.Unlock()
	if !current {
		o.logger.Debug("skipping superseded translation delivery", slog.Uint64("sequence", res.Sequence))
		return
	}

	if o.speaker != nil {
		o.speaker.Speak(res.TranslatedText, res.TargetLanguage)
	}
	if fn != nil {
		fn(res)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
