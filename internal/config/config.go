package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	// StdoutTraces exports spans to stdout when no OTLP endpoint is set.
	StdoutTraces bool `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Upload      UploadConfig     `yaml:"upload"`
	Capture     CaptureConfig    `yaml:"capture"`
	Speech      SpeechConfig     `yaml:"speech"`
	Voices      VoicesConfig     `yaml:"voices"`
	Language    LanguageConfig   `yaml:"language"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type UploadConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type CaptureConfig struct {
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	FragmentBytes int    `yaml:"fragment_bytes"`
	IntervalMS    int    `yaml:"interval_ms"`
	Deny          bool   `yaml:"deny"`
}

type VoiceEntry struct {
	Name string `yaml:"name"`
	Lang string `yaml:"lang"`
}

type SpeechConfig struct {
	Mode            string       `yaml:"mode"` // none, mock, exec
	Command         string       `yaml:"command"`
	VoicesCommand   string       `yaml:"voices_command"`
	Voices          []VoiceEntry `yaml:"voices"`
	DefaultRate     float64      `yaml:"default_rate"`
	MinRate         float64      `yaml:"min_rate"`
	MaxRate         float64      `yaml:"max_rate"`
	AnnounceDelayMS int          `yaml:"announce_delay_ms"`
}

type VoicesConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	MaxAttempts    int `yaml:"max_attempts"`
}

type LanguageConfig struct {
	Default string `yaml:"default"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-tutor",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-tutor.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Upload: UploadConfig{
			Endpoint:  "http://127.0.0.1:5000",
			TimeoutMS: 120000,
		},
		Capture: CaptureConfig{
			Mode:          "mock",
			FragmentBytes: 16 * 1024,
			IntervalMS:    250,
		},
		Speech: SpeechConfig{
			Mode:        "mock",
			DefaultRate: 1,
			MinRate:     0.5,
			MaxRate:     2,
			Voices: []VoiceEntry{
				{Name: "English", Lang: "en-US"},
				{Name: "Spanish", Lang: "es-ES"},
			},
		},
		Voices: VoicesConfig{
			PollIntervalMS: 100,
			MaxAttempts:    50,
		},
		Language: LanguageConfig{
			Default: "auto",
		},
	}
}

// Load reads an optional YAML file over the defaults and then applies
// LOQA_TUTOR_* environment overrides.
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
	overrideString(&cfg.RuntimeName, "LOQA_TUTOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_TUTOR_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_TUTOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_TUTOR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TUTOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TUTOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TUTOR_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "LOQA_TUTOR_TELEMETRY_STDOUT_TRACES")
	overrideBool(&cfg.Bus.Enabled, "LOQA_TUTOR_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_TUTOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_TUTOR_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_TUTOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_TUTOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_TUTOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_TUTOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_TUTOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_TUTOR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_TUTOR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_TUTOR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_TUTOR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_TUTOR_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_TUTOR_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Upload.Endpoint, "LOQA_TUTOR_UPLOAD_ENDPOINT")
	overrideInt(&cfg.Upload.TimeoutMS, "LOQA_TUTOR_UPLOAD_TIMEOUT_MS")
	overrideString(&cfg.Capture.Mode, "LOQA_TUTOR_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "LOQA_TUTOR_CAPTURE_COMMAND")
	overrideInt(&cfg.Capture.FragmentBytes, "LOQA_TUTOR_CAPTURE_FRAGMENT_BYTES")
	overrideInt(&cfg.Capture.IntervalMS, "LOQA_TUTOR_CAPTURE_INTERVAL_MS")
	overrideBool(&cfg.Capture.Deny, "LOQA_TUTOR_CAPTURE_DENY")
	overrideString(&cfg.Speech.Mode, "LOQA_TUTOR_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "LOQA_TUTOR_SPEECH_COMMAND")
	overrideString(&cfg.Speech.VoicesCommand, "LOQA_TUTOR_SPEECH_VOICES_COMMAND")
	overrideFloat(&cfg.Speech.DefaultRate, "LOQA_TUTOR_SPEECH_DEFAULT_RATE")
	overrideFloat(&cfg.Speech.MinRate, "LOQA_TUTOR_SPEECH_MIN_RATE")
	overrideFloat(&cfg.Speech.MaxRate, "LOQA_TUTOR_SPEECH_MAX_RATE")
	overrideInt(&cfg.Speech.AnnounceDelayMS, "LOQA_TUTOR_SPEECH_ANNOUNCE_DELAY_MS")
	overrideInt(&cfg.Voices.PollIntervalMS, "LOQA_TUTOR_VOICES_POLL_INTERVAL_MS")
	overrideInt(&cfg.Voices.MaxAttempts, "LOQA_TUTOR_VOICES_MAX_ATTEMPTS")
	overrideString(&cfg.Language.Default, "LOQA_TUTOR_LANGUAGE_DEFAULT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && value != "" {
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if strings.TrimSpace(cfg.Upload.Endpoint) == "" {
		return errors.New("upload.endpoint must not be empty")
	}
	if cfg.Upload.TimeoutMS <= 0 {
		return errors.New("upload.timeout_ms must be positive")
	}
	switch cfg.Capture.Mode {
	case "mock":
		if cfg.Capture.IntervalMS <= 0 {
			return errors.New("capture.interval_ms must be positive when mode=mock")
		}
	case "exec":
		if cfg.Capture.Command == "" {
			return errors.New("capture.command must be set when mode=exec")
		}
	default:
		return errors.New("capture.mode must be one of mock|exec")
	}
	if cfg.Capture.FragmentBytes < 0 {
		return errors.New("capture.fragment_bytes must be >= 0")
	}
	switch cfg.Speech.Mode {
	case "none", "mock":
	case "exec":
		if cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
	default:
		return errors.New("speech.mode must be one of none|mock|exec")
	}
	if cfg.Speech.MinRate <= 0 || cfg.Speech.MaxRate < cfg.Speech.MinRate {
		return errors.New("speech.min_rate must be positive and not above speech.max_rate")
	}
	if cfg.Speech.DefaultRate < cfg.Speech.MinRate || cfg.Speech.DefaultRate > cfg.Speech.MaxRate {
		return errors.New("speech.default_rate must lie between speech.min_rate and speech.max_rate")
	}
	if cfg.Voices.PollIntervalMS <= 0 {
		return errors.New("voices.poll_interval_ms must be positive")
	}
	if cfg.Voices.MaxAttempts <= 0 {
		return errors.New("voices.max_attempts must be positive")
	}
	if cfg.Language.Default == "" {
		return errors.New("language.default must not be empty")
	}
	return nil
}
