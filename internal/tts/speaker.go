package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interpret/internal/config"
)

// Speaker plays translated text without blocking the caller. Failures are
// logged and never reach the caller.
type Speaker struct {
	cfg    config.TTSConfig
	synth  Synthesizer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewSpeaker(parent context.Context, cfg config.TTSConfig, synth Synthesizer, log *slog.Logger) *Speaker {
	ctx, cancel := context.WithCancel(parent)
	return &Speaker{
		cfg:    cfg,
		synth:  synth,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "tts-speaker")),
	}
}

// Speak queues text for playback in the given locale.
func (s *Speaker) Speak(text, locale string) {
	if s == nil || !s.cfg.Enabled || s.synth == nil || text == "" {
		return
	}
	u := Utterance{
		ID:     uuid.NewString(),
		Text:   text,
		Locale: locale,
		Rate:   s.cfg.Rate,
		Pitch:  s.cfg.Pitch,
	}
	if u.Rate <= 0 {
		u.Rate = 1.0
	}
	if u.Pitch <= 0 {
		u.Pitch = 1.0
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		events, errs := s.synth.Speak(ctx, u)
		for events != nil || errs != nil {
			select {
			case evt, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				switch evt.Kind {
				case EventStarted:
					s.logger.Info("speaking started", slog.String("utterance", u.ID), slog.String("locale", u.Locale))
				case EventEnded:
					s.logger.Info("speaking finished", slog.String("utterance", u.ID))
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					s.logger.Warn("speech synthesis error", slog.String("utterance", u.ID), slogError(err))
				}
			}
		}
	}()
}

// Close cancels in-flight playback and waits for it to wind down.
func (s *Speaker) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Speaker) Healthy() bool { return !s.cfg.Enabled || s.synth != nil }

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
