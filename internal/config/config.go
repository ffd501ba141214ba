package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-interpret/internal/languages"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Node        NodeConfig        `yaml:"node"`
	Session     SessionConfig     `yaml:"session"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Translation TranslationConfig `yaml:"translation"`
	TTS         TTSConfig         `yaml:"tts"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// NodeConfig describes how this runtime announces itself to the edge device
// directory.
type NodeConfig struct {
	ID                string           `yaml:"id"`
	Role              string           `yaml:"role"`
	HeartbeatInterval int              `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int              `yaml:"heartbeat_timeout_ms"`
	Capabilities      []NodeCapability `yaml:"capabilities"`
}

type NodeCapability struct {
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes"`
}

// SessionConfig holds the initial language selection.
type SessionConfig struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	AutoTranslate  bool   `yaml:"auto_translate"`
}

type RecognitionConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Mode          string `yaml:"mode"` // bus, exec, mock
	Command       string `yaml:"command"`
	StartTimeout  int    `yaml:"start_timeout_ms"`
	SettleDelayMS int    `yaml:"settle_delay_ms"`
}

type RecorderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Mode         string `yaml:"mode"` // bus, mock
	DeviceID     string `yaml:"device_id"`
	TimesliceMS  int    `yaml:"timeslice_ms"`
	StartTimeout int    `yaml:"start_timeout_ms"`
	PublishClips bool   `yaml:"publish_clips"`
}

type TranslationConfig struct {
	Mode       string `yaml:"mode"` // mymemory, mock
	Endpoint   string `yaml:"endpoint"`
	Email      string `yaml:"email"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	DebounceMS int    `yaml:"debounce_ms"`
}

type TTSConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Mode      string  `yaml:"mode"` // bus, exec, mock
	Command   string  `yaml:"command"`
	Rate      float64 `yaml:"rate"`
	Pitch     float64 `yaml:"pitch"`
	Target    string  `yaml:"target"`
	TimeoutMS int     `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-interpret",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "interpret-1",
			Role:              "interpreter",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
			Capabilities: []NodeCapability{
				{Name: "translation", Attributes: map[string]string{"provider": "mymemory"}},
			},
		},
		Session: SessionConfig{
			SourceLanguage: "en-US",
			TargetLanguage: "es-ES",
			AutoTranslate:  true,
		},
		Recognition: RecognitionConfig{
			Enabled:       true,
			Mode:          "bus",
			StartTimeout:  2000,
			SettleDelayMS: 100,
		},
		Recorder: RecorderConfig{
			Enabled:      true,
			Mode:         "bus",
			DeviceID:     "default",
			TimesliceMS:  200,
			StartTimeout: 2000,
			PublishClips: true,
		},
		Translation: TranslationConfig{
			Mode:       "mymemory",
			Endpoint:   "https://api.mymemory.translated.net",
			TimeoutMS:  10000,
			DebounceMS: 1000,
		},
		TTS: TTSConfig{
			Enabled:   true,
			Mode:      "bus",
			Rate:      1.0,
			Pitch:     1.0,
			Target:    "default",
			TimeoutMS: 30000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LOQA_NODE_ID")
	overrideString(&cfg.Node.Role, "LOQA_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "LOQA_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LOQA_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.Session.SourceLanguage, "LOQA_SESSION_SOURCE_LANGUAGE")
	overrideString(&cfg.Session.TargetLanguage, "LOQA_SESSION_TARGET_LANGUAGE")
	overrideBool(&cfg.Session.AutoTranslate, "LOQA_SESSION_AUTO_TRANSLATE")
	overrideBool(&cfg.Recognition.Enabled, "LOQA_RECOGNITION_ENABLED")
	overrideString(&cfg.Recognition.Mode, "LOQA_RECOGNITION_MODE")
	overrideString(&cfg.Recognition.Command, "LOQA_RECOGNITION_COMMAND")
	overrideInt(&cfg.Recognition.StartTimeout, "LOQA_RECOGNITION_START_TIMEOUT_MS")
	overrideInt(&cfg.Recognition.SettleDelayMS, "LOQA_RECOGNITION_SETTLE_DELAY_MS")
	overrideBool(&cfg.Recorder.Enabled, "LOQA_RECORDER_ENABLED")
	overrideString(&cfg.Recorder.Mode, "LOQA_RECORDER_MODE")
	overrideString(&cfg.Recorder.DeviceID, "LOQA_RECORDER_DEVICE_ID")
	overrideInt(&cfg.Recorder.TimesliceMS, "LOQA_RECORDER_TIMESLICE_MS")
	overrideInt(&cfg.Recorder.StartTimeout, "LOQA_RECORDER_START_TIMEOUT_MS")
	overrideBool(&cfg.Recorder.PublishClips, "LOQA_RECORDER_PUBLISH_CLIPS")
	overrideString(&cfg.Translation.Mode, "LOQA_TRANSLATION_MODE")
	overrideString(&cfg.Translation.Endpoint, "LOQA_TRANSLATION_ENDPOINT")
	overrideString(&cfg.Translation.Email, "LOQA_TRANSLATION_EMAIL")
	overrideInt(&cfg.Translation.TimeoutMS, "LOQA_TRANSLATION_TIMEOUT_MS")
	overrideInt(&cfg.Translation.DebounceMS, "LOQA_TRANSLATION_DEBOUNCE_MS")
	overrideBool(&cfg.TTS.Enabled, "LOQA_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideFloat(&cfg.TTS.Rate, "LOQA_TTS_RATE")
	overrideFloat(&cfg.TTS.Pitch, "LOQA_TTS_PITCH")
	overrideString(&cfg.TTS.Target, "LOQA_TTS_TARGET")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_TTS_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if !languages.Supported(cfg.Session.SourceLanguage) {
		return fmt.Errorf("session.source_language %q is not a supported locale", cfg.Session.SourceLanguage)
	}
	if !languages.Supported(cfg.Session.TargetLanguage) {
		return fmt.Errorf("session.target_language %q is not a supported locale", cfg.Session.TargetLanguage)
	}
	if cfg.Recognition.Enabled {
		switch cfg.Recognition.Mode {
		case "bus", "exec", "mock":
		default:
			return errors.New("recognition.mode must be one of bus|exec|mock")
		}
		if cfg.Recognition.Mode == "exec" && cfg.Recognition.Command == "" {
			return errors.New("recognition.command must be set when mode=exec")
		}
		if cfg.Recognition.SettleDelayMS <= 0 {
			return errors.New("recognition.settle_delay_ms must be positive")
		}
	}
	if cfg.Recorder.Enabled {
		switch cfg.Recorder.Mode {
		case "bus", "mock":
		default:
			return errors.New("recorder.mode must be one of bus|mock")
		}
		if cfg.Recorder.DeviceID == "" {
			return errors.New("recorder.device_id must not be empty")
		}
		if cfg.Recorder.TimesliceMS <= 0 {
			return errors.New("recorder.timeslice_ms must be positive")
		}
	}
	switch cfg.Translation.Mode {
	case "mymemory", "mock":
	default:
		return errors.New("translation.mode must be one of mymemory|mock")
	}
	if cfg.Translation.Mode == "mymemory" && cfg.Translation.Endpoint == "" {
		return errors.New("translation.endpoint must be set when mode=mymemory")
	}
	if cfg.Translation.DebounceMS <= 0 {
		return errors.New("translation.debounce_ms must be positive")
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "bus", "exec", "mock":
		default:
			return errors.New("tts.mode must be one of bus|exec|mock")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.Rate <= 0 {
			return errors.New("tts.rate must be positive")
		}
		if cfg.TTS.Pitch <= 0 {
			return errors.New("tts.pitch must be positive")
		}
	}
	return nil
}
