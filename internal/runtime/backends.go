package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/loqalabs/loqa-interpret/internal/recognition"
	"github.com/loqalabs/loqa-interpret/internal/recorder"
	"github.com/loqalabs/loqa-interpret/internal/translation"
	"github.com/loqalabs/loqa-interpret/internal/tts"
)

// newRecognitionService returns nil when recognition is disabled, which the
// manager reports as an unsupported capability.
func newRecognitionService(cfg config.RecognitionConfig, busClient *bus.Client, logger *slog.Logger) (recognition.Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "bus":
		return recognition.NewBusService(busClient, time.Duration(cfg.StartTimeout)*time.Millisecond, logger), nil
	case "exec":
		svc, err := recognition.NewExecService(cfg.Command, logger)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "mock":
		return recognition.NewMockService(), nil
	default:
		return nil, fmt.Errorf("unknown recognition mode %q", cfg.Mode)
	}
}

func newCaptureDevice(cfg config.RecorderConfig, busClient *bus.Client, logger *slog.Logger) (recorder.Device, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "bus":
		return recorder.NewBusDevice(busClient, cfg.DeviceID, time.Duration(cfg.StartTimeout)*time.Millisecond, logger), nil
	case "mock":
		return recorder.NewMockDevice(), nil
	default:
		return nil, fmt.Errorf("unknown recorder mode %q", cfg.Mode)
	}
}

func newSynthesizer(cfg config.TTSConfig, busClient *bus.Client, logger *slog.Logger) (tts.Synthesizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "bus":
		return tts.NewBusSynth(busClient, cfg.Target, logger), nil
	case "exec":
		synth, err := tts.NewExecSynth(cfg.Command)
		if err != nil {
			return nil, err
		}
		return synth, nil
	case "mock":
		return tts.NewMockSynth(), nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

func newTranslator(cfg config.TranslationConfig, logger *slog.Logger) (translation.Translator, error) {
	switch cfg.Mode {
	case "mymemory":
		return translation.NewMyMemoryClient(cfg.Endpoint, cfg.Email, time.Duration(cfg.TimeoutMS)*time.Millisecond, logger), nil
	case "mock":
		return translation.NewMockTranslator(), nil
	default:
		return nil, fmt.Errorf("unknown translation mode %q", cfg.Mode)
	}
}
