package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Manager turns a capture device into start/stop recording sessions.
type Manager struct {
	device    Device
	timeslice time.Duration
	logger    *slog.Logger

	// opMu serializes StartRecording and StopRecording.
	opMu sync.Mutex

	mu        sync.Mutex
	stream    Stream
	recording bool
	chunks    [][]byte
	size      int
	clip      *Clip
	startedAt time.Time
	done      chan struct{}
	lastErr   string
	onAudio   func(Clip)

	wg    sync.WaitGroup
	clips metric.Int64Counter
}

func NewManager(device Device, timeslice time.Duration, logger *slog.Logger) *Manager {
	if timeslice <= 0 {
		timeslice = 200 * time.Millisecond
	}
	m := &Manager{
		device:    device,
		timeslice: timeslice,
		logger:    logger.With(slog.String("component", "recorder")),
	}
	counter, err := otel.Meter("github.com/loqalabs/loqa-interpret/recorder").Int64Counter(
		"loqa.recorder.clips", metric.WithDescription("Finished recording clips"))
	if err != nil {
		m.logger.Warn("failed to initialize metrics", slogError(err))
	}
	m.clips = counter
	return m
}

// OnAudioRecorded registers the subscriber that receives each finished clip.
func (m *Manager) OnAudioRecorded(fn func(Clip)) {
	m.mu.Lock()
	m.onAudio = fn
	m.mu.Unlock()
}

// StartRecording acquires the device and begins accumulating chunks. It is a
// no-op while already recording.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.recording {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.device == nil {
		m.setErr("no capture device configured")
		return fmt.Errorf("%w: no capture device configured", ErrDeviceUnavailable)
	}

	stream, err := m.device.Acquire(ctx, m.timeslice)
	if err != nil {
		m.setErr("Error accessing microphone: " + err.Error())
		m.logger.Warn("error accessing microphone", slogError(err))
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.chunks = nil
	m.size = 0
	m.clip = nil
	m.lastErr = ""
	m.stream = stream
	m.recording = true
	m.startedAt = time.Now().UTC()
	m.done = done
	m.mu.Unlock()

	m.wg.Add(1)
	go m.collect(stream, done)

	m.logger.Info("recording started", slog.Duration("timeslice", m.timeslice))
	return nil
}

// StopRecording finalizes the session and returns the clip. It returns nil
// without error when not recording.
func (m *Manager) StopRecording(ctx context.Context) (*Clip, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if !m.recording {
		m.mu.Unlock()
		return nil, nil
	}
	stream, done := m.stream, m.done
	m.mu.Unlock()

	stream.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for recording to finalize: %w", ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clip == nil {
		return nil, nil
	}
	clip := m.clip.copy()
	return &clip, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Recording: m.recording,
		Chunks:    len(m.chunks),
		Bytes:     m.size,
		Error:     m.lastErr,
	}
	if m.clip != nil {
		clip := m.clip.copy()
		st.Clip = &clip
	}
	return st
}

// Close stops an active recording and waits for it to finalize.
func (m *Manager) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.StopRecording(ctx); err != nil {
		m.logger.Warn("recorder close failed", slogError(err))
	}
	m.wg.Wait()
}

func (m *Manager) collect(stream Stream, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)

	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		m.mu.Lock()
		m.chunks = append(m.chunks, append([]byte(nil), chunk...))
		m.size += len(chunk)
		m.mu.Unlock()
	}
	m.finalize()
}

// finalize runs after the device closed its chunk channel, so every chunk of
// the session has been appended.
func (m *Manager) finalize() {
	m.mu.Lock()
	data := make([]byte, 0, m.size)
	for _, c := range m.chunks {
		data = append(data, c...)
	}
	clip := Clip{
		ID:        uuid.NewString(),
		MIMEType:  ClipMIMEType,
		Data:      data,
		Size:      len(data),
		Chunks:    len(m.chunks),
		StartedAt: m.startedAt,
		StoppedAt: time.Now().UTC(),
	}
	m.clip = &clip
	m.chunks = nil
	m.size = 0
	m.recording = false
	m.stream = nil
	fn := m.onAudio
	m.mu.Unlock()

	if m.clips != nil {
		m.clips.Add(context.Background(), 1)
	}
	m.logger.Info("recording finished", slog.String("clip", clip.ID), slog.Int("bytes", clip.Size), slog.Int("chunks", clip.Chunks))
	if fn != nil {
		fn(clip.copy())
	}
}

func (m *Manager) setErr(msg string) {
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
