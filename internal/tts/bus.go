package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/protocol"
	"github.com/nats-io/nats.go"
)

type busSynth struct {
	bus    *bus.Client
	target string
	logger *slog.Logger
}

// NewBusSynth publishes utterances on tts.request for a playback device and
// follows its progress on tts.status.<utterance>.
func NewBusSynth(busClient *bus.Client, target string, logger *slog.Logger) Synthesizer {
	return &busSynth{
		bus:    busClient,
		target: target,
		logger: logger.With(slog.String("component", "tts-bus")),
	}
}

func (b *busSynth) Speak(ctx context.Context, u Utterance) (<-chan Event, <-chan error) {
	events := make(chan Event, 2)
	errs := make(chan error, 1)

	statuses := make(chan protocol.TTSStatus, 4)
	sub, err := b.bus.Conn().Subscribe(protocol.SubjectTTSStatusPrefix+"."+u.ID, func(msg *nats.Msg) {
		var status protocol.TTSStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			b.logger.Warn("failed to decode tts status", slogError(err))
			return
		}
		select {
		case statuses <- status:
		default:
		}
	})
	if err != nil {
		errs <- fmt.Errorf("subscribe tts status: %w", err)
		close(events)
		close(errs)
		return events, errs
	}

	err = b.bus.PublishJSON(protocol.SubjectTTSRequest, protocol.TTSRequest{
		SessionID: u.ID,
		Text:      u.Text,
		Voice:     u.Locale,
		Rate:      u.Rate,
		Pitch:     u.Pitch,
		Target:    b.target,
	})
	if err != nil {
		_ = sub.Unsubscribe()
		errs <- fmt.Errorf("publish tts request: %w", err)
		close(events)
		close(errs)
		return events, errs
	}

	go func() {
		defer close(events)
		defer close(errs)
		defer func() { _ = sub.Unsubscribe() }()

		started := false
		for {
			select {
			case status := <-statuses:
				if status.Error != "" {
					errs <- errors.New(status.Error)
					return
				}
				if !started && (status.Started || status.Completed) {
					started = true
					events <- Event{UtteranceID: u.ID, Kind: EventStarted, At: stamp(status.Timestamp)}
				}
				if status.Completed {
					events <- Event{UtteranceID: u.ID, Kind: EventEnded, At: stamp(status.Timestamp)}
					return
				}
			case <-ctx.Done():
				errs <- fmt.Errorf("wait for playback: %w", ctx.Err())
				return
			}
		}
	}()
	return events, errs
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
