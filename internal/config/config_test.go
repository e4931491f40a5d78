package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Upload.TimeoutMS != 120000 {
		t.Fatalf("expected 120s upload timeout, got %d", cfg.Upload.TimeoutMS)
	}
	if cfg.Speech.DefaultRate != 1 || cfg.Speech.MinRate != 0.5 || cfg.Speech.MaxRate != 2 {
		t.Fatalf("unexpected rate defaults %+v", cfg.Speech)
	}
	if cfg.Voices.PollIntervalMS != 100 {
		t.Fatalf("expected 100ms voice poll, got %d", cfg.Voices.PollIntervalMS)
	}
	if cfg.Language.Default != "auto" {
		t.Fatalf("expected auto language, got %q", cfg.Language.Default)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.yaml")
	data := `
runtime_name: tutor-test
upload:
  endpoint: http://backend:5000
capture:
  mode: exec
  command: ffmpeg -f pulse -i default -f webm -
speech:
  mode: exec
  command: speak-json
  voices:
    - name: Paulina
      lang: es-MX
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "tutor-test" || cfg.Upload.Endpoint != "http://backend:5000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Capture.Mode != "exec" || !strings.HasPrefix(cfg.Capture.Command, "ffmpeg") {
		t.Fatalf("unexpected capture config %+v", cfg.Capture)
	}
	if len(cfg.Speech.Voices) != 1 || cfg.Speech.Voices[0].Lang != "es-MX" {
		t.Fatalf("unexpected voices %+v", cfg.Speech.Voices)
	}
	if cfg.Upload.TimeoutMS != 120000 {
		t.Fatal("expected defaults kept for unset fields")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_TUTOR_BUS_ENABLED", "true")
	t.Setenv("LOQA_TUTOR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_TUTOR_BUS_USERNAME", "alice")
	t.Setenv("LOQA_TUTOR_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_TUTOR_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_TUTOR_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_TUTOR_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_TUTOR_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_TUTOR_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("LOQA_TUTOR_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("LOQA_TUTOR_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("LOQA_TUTOR_UPLOAD_ENDPOINT", "http://other:5000")
	t.Setenv("LOQA_TUTOR_UPLOAD_TIMEOUT_MS", "3000")
	t.Setenv("LOQA_TUTOR_SPEECH_MODE", "none")
	t.Setenv("LOQA_TUTOR_SPEECH_DEFAULT_RATE", "1.25")
	t.Setenv("LOQA_TUTOR_VOICES_MAX_ATTEMPTS", "5")
	t.Setenv("LOQA_TUTOR_LANGUAGE_DEFAULT", "es")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.Bus.Enabled {
		t.Fatal("expected bus enabled override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.EventStore.RetentionDays != 7 || cfg.EventStore.MaxSessions != 123 || !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store retention overrides, got %+v", cfg.EventStore)
	}
	if cfg.Upload.Endpoint != "http://other:5000" || cfg.Upload.TimeoutMS != 3000 {
		t.Fatalf("expected upload overrides, got %+v", cfg.Upload)
	}
	if cfg.Speech.Mode != "none" || cfg.Speech.DefaultRate != 1.25 {
		t.Fatalf("expected speech overrides, got %+v", cfg.Speech)
	}
	if cfg.Voices.MaxAttempts != 5 {
		t.Fatalf("expected voices override, got %d", cfg.Voices.MaxAttempts)
	}
	if cfg.Language.Default != "es" {
		t.Fatalf("expected language override, got %q", cfg.Language.Default)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"capture exec without command": func(c *Config) { c.Capture.Mode = "exec"; c.Capture.Command = "" },
		"unknown capture mode":         func(c *Config) { c.Capture.Mode = "webrtc" },
		"speech exec without command":  func(c *Config) { c.Speech.Mode = "exec"; c.Speech.Command = "" },
		"default rate out of range":    func(c *Config) { c.Speech.DefaultRate = 3 },
		"inverted rate range":          func(c *Config) { c.Speech.MinRate = 2; c.Speech.MaxRate = 1 },
		"zero upload timeout":          func(c *Config) { c.Upload.TimeoutMS = 0 },
		"bad retention mode":           func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"remote bus without servers":   func(c *Config) { c.Bus.Enabled = true; c.Bus.Embedded = false; c.Bus.Servers = nil },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
