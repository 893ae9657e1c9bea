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
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Backend     BackendConfig    `yaml:"backend"`
	Session     SessionConfig    `yaml:"session"`
	Audio       AudioConfig      `yaml:"audio"`
	Capture     CaptureConfig    `yaml:"capture"`
	Playback    PlaybackConfig   `yaml:"playback"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	ResetTimeoutMS int    `yaml:"reset_timeout_ms"`
}

type SessionConfig struct {
	RequiredTurns       int      `yaml:"required_turns"`
	DefaultMode         string   `yaml:"default_mode"`
	RegreetOnModeSwitch bool     `yaml:"regreet_on_mode_switch"`
	Roles               []string `yaml:"roles"`
}

type AudioConfig struct {
	MimeType       string `yaml:"mime_type"`
	UploadFilename string `yaml:"upload_filename"`
}

type CaptureConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, file
	Command    string `yaml:"command"`
	Path       string `yaml:"path"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	DurationMS int    `yaml:"duration_ms"`
}

type PlaybackConfig struct {
	Mode    string `yaml:"mode"` // discard, exec
	Command string `yaml:"command"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-interview",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    9090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:8000",
			TimeoutMS:      120000,
			ResetTimeoutMS: 5000,
		},
		Session: SessionConfig{
			RequiredTurns: 4,
			DefaultMode:   "voice",
			Roles:         []string{"Software Engineer", "Sales Executive"},
		},
		Audio: AudioConfig{
			MimeType:       "audio/mp3",
			UploadFilename: "user.wav",
		},
		Capture: CaptureConfig{
			Mode:       "mock",
			SampleRate: 16000,
			Channels:   1,
			DurationMS: 1000,
		},
		Playback: PlaybackConfig{
			Mode: "discard",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "interview",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/interview-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
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
	overrideString(&cfg.RuntimeName, "LOQA_INTERVIEW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_INTERVIEW_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "LOQA_INTERVIEW_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "LOQA_INTERVIEW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_INTERVIEW_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_INTERVIEW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_INTERVIEW_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_INTERVIEW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_INTERVIEW_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Backend.BaseURL, "LOQA_INTERVIEW_BACKEND_BASE_URL")
	overrideInt(&cfg.Backend.TimeoutMS, "LOQA_INTERVIEW_BACKEND_TIMEOUT_MS")
	overrideInt(&cfg.Backend.ResetTimeoutMS, "LOQA_INTERVIEW_BACKEND_RESET_TIMEOUT_MS")
	overrideInt(&cfg.Session.RequiredTurns, "LOQA_INTERVIEW_SESSION_REQUIRED_TURNS")
	overrideString(&cfg.Session.DefaultMode, "LOQA_INTERVIEW_SESSION_DEFAULT_MODE")
	overrideBool(&cfg.Session.RegreetOnModeSwitch, "LOQA_INTERVIEW_SESSION_REGREET_ON_MODE_SWITCH")
	overrideStringSlice(&cfg.Session.Roles, "LOQA_INTERVIEW_SESSION_ROLES")
	overrideString(&cfg.Audio.MimeType, "LOQA_INTERVIEW_AUDIO_MIME_TYPE")
	overrideString(&cfg.Audio.UploadFilename, "LOQA_INTERVIEW_AUDIO_UPLOAD_FILENAME")
	overrideString(&cfg.Capture.Mode, "LOQA_INTERVIEW_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "LOQA_INTERVIEW_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.Path, "LOQA_INTERVIEW_CAPTURE_PATH")
	overrideInt(&cfg.Capture.SampleRate, "LOQA_INTERVIEW_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "LOQA_INTERVIEW_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.DurationMS, "LOQA_INTERVIEW_CAPTURE_DURATION_MS")
	overrideString(&cfg.Playback.Mode, "LOQA_INTERVIEW_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "LOQA_INTERVIEW_PLAYBACK_COMMAND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_INTERVIEW_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_INTERVIEW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_INTERVIEW_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_INTERVIEW_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_INTERVIEW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_INTERVIEW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_INTERVIEW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_INTERVIEW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_INTERVIEW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_INTERVIEW_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "LOQA_INTERVIEW_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.EventStore.Path, "LOQA_INTERVIEW_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_INTERVIEW_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_INTERVIEW_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_INTERVIEW_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_INTERVIEW_EVENT_STORE_VACUUM_ON_START")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return errors.New("backend.base_url must not be empty")
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return errors.New("backend.timeout_ms must be positive")
	}
	if cfg.Backend.ResetTimeoutMS <= 0 {
		return errors.New("backend.reset_timeout_ms must be positive")
	}
	if cfg.Session.RequiredTurns < 0 {
		return errors.New("session.required_turns must be >= 0")
	}
	switch cfg.Session.DefaultMode {
	case "text", "voice":
	default:
		return errors.New("session.default_mode must be one of text|voice")
	}
	if cfg.Audio.MimeType == "" {
		return errors.New("audio.mime_type must not be empty")
	}
	if cfg.Audio.UploadFilename == "" {
		return errors.New("audio.upload_filename must not be empty")
	}
	switch cfg.Capture.Mode {
	case "mock", "file":
	case "exec":
		if cfg.Capture.Command == "" {
			return errors.New("capture.command must be set when mode=exec")
		}
	default:
		return errors.New("capture.mode must be one of mock|exec|file")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	switch cfg.Playback.Mode {
	case "discard":
	case "exec":
		if cfg.Playback.Command == "" {
			return errors.New("playback.command must be set when mode=exec")
		}
	default:
		return errors.New("playback.mode must be one of discard|exec")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "session", "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}
