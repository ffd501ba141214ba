package runtime

import (
	"testing"

	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/loqalabs/loqa-interpret/internal/recognition"
	"github.com/loqalabs/loqa-interpret/internal/translation"
)

func TestDisabledBackendsAreNil(t *testing.T) {
	svc, err := newRecognitionService(config.RecognitionConfig{Enabled: false, Mode: "bus"}, nil, newLogger())
	if err != nil || svc != nil {
		t.Fatalf("expected nil recognition service, got %v %v", svc, err)
	}
	device, err := newCaptureDevice(config.RecorderConfig{Enabled: false, Mode: "bus"}, nil, newLogger())
	if err != nil || device != nil {
		t.Fatalf("expected nil capture device, got %v %v", device, err)
	}
	synth, err := newSynthesizer(config.TTSConfig{Enabled: false, Mode: "bus"}, nil, newLogger())
	if err != nil || synth != nil {
		t.Fatalf("expected nil synthesizer, got %v %v", synth, err)
	}
}

func TestMockBackends(t *testing.T) {
	svc, err := newRecognitionService(config.RecognitionConfig{Enabled: true, Mode: "mock"}, nil, newLogger())
	if err != nil {
		t.Fatalf("recognition: %v", err)
	}
	if _, ok := svc.(*recognition.MockService); !ok {
		t.Fatalf("expected mock recognition service, got %T", svc)
	}
	tr, err := newTranslator(config.TranslationConfig{Mode: "mock"}, newLogger())
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	if _, ok := tr.(*translation.MockTranslator); !ok {
		t.Fatalf("expected mock translator, got %T", tr)
	}
	tr, err = newTranslator(config.TranslationConfig{Mode: "mymemory"}, newLogger())
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	if _, ok := tr.(*translation.MyMemoryClient); !ok {
		t.Fatalf("expected mymemory client, got %T", tr)
	}
}

func TestUnknownModes(t *testing.T) {
	if _, err := newRecognitionService(config.RecognitionConfig{Enabled: true, Mode: "browser"}, nil, newLogger()); err == nil {
		t.Fatal("expected error for unknown recognition mode")
	}
	if _, err := newCaptureDevice(config.RecorderConfig{Enabled: true, Mode: "alsa"}, nil, newLogger()); err == nil {
		t.Fatal("expected error for unknown recorder mode")
	}
	if _, err := newSynthesizer(config.TTSConfig{Enabled: true, Mode: "cloud"}, nil, newLogger()); err == nil {
		t.Fatal("expected error for unknown tts mode")
	}
	if _, err := newTranslator(config.TranslationConfig{Mode: "deepl"}, newLogger()); err == nil {
		t.Fatal("expected error for unknown translation mode")
	}
}

func TestExecRecognitionNeedsCommand(t *testing.T) {
	if _, err := newRecognitionService(config.RecognitionConfig{Enabled: true, Mode: "exec"}, nil, newLogger()); err == nil {
		t.Fatal("expected error for empty exec command")
	}
}
