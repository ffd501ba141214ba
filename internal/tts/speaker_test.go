package tts

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/loqalabs/loqa-interpret/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestSpeakerAppliesDefaults(t *testing.T) {
	synth := NewMockSynth()
	logger, logs := newTestLogger()
	speaker := NewSpeaker(context.Background(), config.TTSConfig{Enabled: true}, synth, logger)

	speaker.Speak("hola", "es-ES")
	speaker.Close()

	spoken := synth.Spoken()
	if len(spoken) != 1 {
		t.Fatalf("expected one utterance, got %d", len(spoken))
	}
	u := spoken[0]
	if u.Text != "hola" || u.Locale != "es-ES" {
		t.Fatalf("unexpected utterance %+v", u)
	}
	if u.Rate != 1.0 || u.Pitch != 1.0 {
		t.Fatalf("expected default rate and pitch, got %v %v", u.Rate, u.Pitch)
	}
	out := logs.String()
	if !strings.Contains(out, "speaking started") || !strings.Contains(out, "speaking finished") {
		t.Fatalf("expected lifecycle logs, got %s", out)
	}
}

func TestSpeakerUsesConfiguredVoice(t *testing.T) {
	synth := NewMockSynth()
	logger, _ := newTestLogger()
	speaker := NewSpeaker(context.Background(), config.TTSConfig{Enabled: true, Rate: 1.5, Pitch: 0.8}, synth, logger)

	speaker.Speak("bonjour", "fr-FR")
	speaker.Close()

	u := synth.Spoken()[0]
	if u.Rate != 1.5 || u.Pitch != 0.8 {
		t.Fatalf("expected configured voice, got %v %v", u.Rate, u.Pitch)
	}
}

func TestSpeakerLogsFailures(t *testing.T) {
	synth := NewMockSynth()
	synth.FailWith(errors.New("audio device busy"))
	logger, logs := newTestLogger()
	speaker := NewSpeaker(context.Background(), config.TTSConfig{Enabled: true}, synth, logger)

	speaker.Speak("hola", "es-ES")
	speaker.Close()

	if !strings.Contains(logs.String(), "audio device busy") {
		t.Fatalf("expected failure to be logged, got %s", logs.String())
	}
}

func TestSpeakerDisabledOrEmpty(t *testing.T) {
	synth := NewMockSynth()
	logger, _ := newTestLogger()

	disabled := NewSpeaker(context.Background(), config.TTSConfig{Enabled: false}, synth, logger)
	disabled.Speak("hola", "es-ES")
	disabled.Close()

	enabled := NewSpeaker(context.Background(), config.TTSConfig{Enabled: true}, synth, logger)
	enabled.Speak("", "es-ES")
	enabled.Close()

	if n := len(synth.Spoken()); n != 0 {
		t.Fatalf("expected nothing spoken, got %d", n)
	}
}
