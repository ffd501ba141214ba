package recorder

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

// BusDevice captures audio from an edge device that streams AudioFrame
// messages on audio.frame.<device>.
type BusDevice struct {
	bus          *bus.Client
	deviceID     string
	startTimeout time.Duration
	logger       *slog.Logger
}

func NewBusDevice(busClient *bus.Client, deviceID string, startTimeout time.Duration, logger *slog.Logger) *BusDevice {
	if startTimeout <= 0 {
		startTimeout = 2 * time.Second
	}
	return &BusDevice{
		bus:          busClient,
		deviceID:     deviceID,
		startTimeout: startTimeout,
		logger:       logger.With(slog.String("component", "recorder-bus"), slog.String("device", deviceID)),
	}
}

func (d *BusDevice) Acquire(ctx context.Context, timeslice time.Duration) (Stream, error) {
	if !d.bus.Healthy() {
		return nil, errors.New("bus not connected")
	}

	s := &busStream{
		id:     uuid.NewString(),
		device: d,
		chunks: make(chan []byte, 64),
		final:  make(chan struct{}),
	}
	sub, err := d.bus.Conn().Subscribe(protocol.SubjectAudioFramePrefix+"."+d.deviceID, s.handleFrame)
	if err != nil {
		return nil, fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub

	reqCtx, cancel := context.WithTimeout(ctx, d.startTimeout)
	defer cancel()

	var reply protocol.ControlReply
	err = d.bus.RequestJSON(reqCtx, protocol.SubjectAudioControl, protocol.AudioControl{
		DeviceID:    d.deviceID,
		SessionID:   s.id,
		Action:      protocol.ActionStart,
		TimesliceMS: int(timeslice / time.Millisecond),
		Timestamp:   time.Now().UTC(),
	}, &reply)
	if err != nil {
		_ = sub.Unsubscribe()
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no capture device %q on the bus", d.deviceID)
		}
		return nil, fmt.Errorf("request capture start: %w", err)
	}
	if !reply.OK {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("capture start rejected: %s", reply.Error)
	}
	return s, nil
}

type busStream struct {
	id     string
	device *BusDevice
	sub    *nats.Subscription
	chunks chan []byte

	final     chan struct{}
	finalOnce sync.Once
	stopOnce  sync.Once

	mu     sync.Mutex
	closed bool
}

func (s *busStream) Chunks() <-chan []byte { return s.chunks }

func (s *busStream) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.device.logger.Warn("failed to decode audio frame", slogError(err))
		return
	}
	if frame.SessionID != "" && frame.SessionID != s.id {
		return
	}

	s.mu.Lock()
	if !s.closed {
		s.chunks <- frame.PCM
	}
	s.mu.Unlock()

	if frame.Final {
		s.finalOnce.Do(func() { close(s.final) })
	}
}

// Stop asks the device to stop and closes the chunk channel once the device
// sent its final frame or the start timeout elapsed.
func (s *busStream) Stop() {
	s.stopOnce.Do(func() {
		err := s.device.bus.PublishJSON(protocol.SubjectAudioControl, protocol.AudioControl{
			DeviceID:  s.device.deviceID,
			SessionID: s.id,
			Action:    protocol.ActionStop,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			s.device.logger.Warn("failed to publish capture stop", slogError(err))
		}

		go func() {
			timer := time.NewTimer(s.device.startTimeout)
			defer timer.Stop()
			select {
			case <-s.final:
			case <-timer.C:
				s.device.logger.Warn("capture device did not send a final frame")
			}
			_ = s.sub.Unsubscribe()

			s.mu.Lock()
			s.closed = true
			close(s.chunks)
			s.mu.Unlock()
		}()
	})
}
