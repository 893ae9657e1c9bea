package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://127.0.0.1:8000" {
		t.Fatalf("expected default backend, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.RequiredTurns != 4 {
		t.Fatalf("expected 4 required turns, got %d", cfg.Session.RequiredTurns)
	}
	if cfg.Session.DefaultMode != "voice" {
		t.Fatalf("expected voice default mode, got %q", cfg.Session.DefaultMode)
	}
	if cfg.Audio.MimeType != "audio/mp3" {
		t.Fatalf("unexpected mime type %q", cfg.Audio.MimeType)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interview.yaml")
	data := []byte(`backend:
  base_url: http://backend:9000
session:
  required_turns: 2
  default_mode: text
  roles: [Data Scientist]
capture:
  mode: exec
  command: arecord -q -f S16_LE -
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://backend:9000" {
		t.Fatalf("expected base url from file, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.RequiredTurns != 2 || cfg.Session.DefaultMode != "text" {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if len(cfg.Session.Roles) != 1 || cfg.Session.Roles[0] != "Data Scientist" {
		t.Fatalf("unexpected roles %v", cfg.Session.Roles)
	}
	if cfg.Backend.TimeoutMS != 120000 {
		t.Fatalf("expected default timeout to survive partial file, got %d", cfg.Backend.TimeoutMS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_INTERVIEW_BACKEND_BASE_URL", "http://override:8000")
	t.Setenv("LOQA_INTERVIEW_BACKEND_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_INTERVIEW_SESSION_REQUIRED_TURNS", "6")
	t.Setenv("LOQA_INTERVIEW_SESSION_REGREET_ON_MODE_SWITCH", "true")
	t.Setenv("LOQA_INTERVIEW_SESSION_ROLES", "Chef, Pilot")
	t.Setenv("LOQA_INTERVIEW_BUS_ENABLED", "true")
	t.Setenv("LOQA_INTERVIEW_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_INTERVIEW_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_INTERVIEW_EVENT_STORE_MAX_SESSIONS", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://override:8000" {
		t.Fatalf("expected base url override")
	}
	if cfg.Backend.TimeoutMS != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Backend.TimeoutMS)
	}
	if cfg.Session.RequiredTurns != 6 {
		t.Fatalf("expected required turns override")
	}
	if !cfg.Session.RegreetOnModeSwitch {
		t.Fatalf("expected regreet override")
	}
	if len(cfg.Session.Roles) != 2 || cfg.Session.Roles[1] != "Pilot" {
		t.Fatalf("unexpected roles %v", cfg.Session.Roles)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxSessions != 12 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty base url":   func(c *Config) { c.Backend.BaseURL = " " },
		"bad mode":         func(c *Config) { c.Session.DefaultMode = "video" },
		"negative turns":   func(c *Config) { c.Session.RequiredTurns = -1 },
		"exec no command":  func(c *Config) { c.Capture.Mode = "exec" },
		"player no cmd":    func(c *Config) { c.Playback.Mode = "exec" },
		"otlp no endpoint": func(c *Config) { c.Telemetry.TraceExporter = "otlp" },
		"bad retention":    func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"bus no servers": func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Servers = nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
