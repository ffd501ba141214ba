package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/protocol"
)

type BridgeOptions struct {
	SessionID    string
	DeviceID     string
	PublishClips bool
}

// Bridge mirrors coordinator events onto the bus so edge displays and
// players can follow the session.
type Bridge struct {
	opts        BridgeOptions
	bus         *bus.Client
	coordinator *Coordinator
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc

	mu          sync.Mutex
	unsubscribe func()
}

func NewBridge(parent context.Context, opts BridgeOptions, busClient *bus.Client, coordinator *Coordinator, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(parent)
	return &Bridge{
		opts:        opts,
		bus:         busClient,
		coordinator: coordinator,
		logger:      logger.With(slog.String("component", "bridge")),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		return nil
	}
	b.unsubscribe = b.coordinator.Subscribe(b.handleEvent)
	b.publish(protocol.SubjectState, b.coordinator.Snapshot())
	return nil
}

func (b *Bridge) Close() {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

func (b *Bridge) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribe != nil && b.bus.Healthy()
}

func (b *Bridge) handleEvent(evt Event) {
	if b.ctx.Err() != nil {
		return
	}
	switch evt.Kind {
	case EventTranscript:
		subject := protocol.SubjectTranscriptPartial
		if evt.Transcript.IsFinal {
			subject = protocol.SubjectTranscriptFinal
		}
		b.publish(subject, protocol.Transcript{
			SessionID: b.opts.SessionID,
			Text:      evt.Transcript.LiveText,
			Partial:   !evt.Transcript.IsFinal,
			Timestamp: stamp(evt.State.UpdatedAt),
		})
	case EventTranslation:
		res := evt.Translation
		b.publish(protocol.SubjectTranslation, protocol.TranslationResult{
			Sequence:       res.Sequence,
			SourceText:     res.SourceText,
			TranslatedText: res.TranslatedText,
			SourceLanguage: res.SourceLanguage,
			TargetLanguage: res.TargetLanguage,
			Manual:         res.Manual,
			Timestamp:      stamp(res.At),
		})
	case EventClip:
		if b.opts.PublishClips {
			clip := evt.Clip
			b.publish(protocol.SubjectRecorderClip, protocol.RecordedClip{
				ClipID:    clip.ID,
				DeviceID:  b.opts.DeviceID,
				MIMEType:  clip.MIMEType,
				Chunks:    clip.Chunks,
				Data:      clip.Data,
				StartedAt: clip.StartedAt,
				StoppedAt: clip.StoppedAt,
			})
		}
	}
	b.publish(protocol.SubjectState, evt.State)
}

func (b *Bridge) publish(subject string, v any) {
	if err := b.bus.PublishJSON(subject, v); err != nil {
		b.logger.Warn("bridge failed to publish", slog.String("subject", subject), slogError(err))
	}
}

// stamp keeps zero timestamps out of published messages.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
