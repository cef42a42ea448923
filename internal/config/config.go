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
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type LedgerConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	HistoryLimit  int    `yaml:"history_limit"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type EngineConfig struct {
	Mode         string `yaml:"mode"` // mock, exec
	Command      string `yaml:"command"`
	Voice        string `yaml:"voice"`
	SampleRate   int    `yaml:"sample_rate"`
	ChunkSamples int    `yaml:"chunk_samples"`
}

type AudioConfig struct {
	TailDrainMS       int `yaml:"tail_drain_ms"`
	MonitorIntervalMS int `yaml:"monitor_interval_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	PIDFile     string          `yaml:"pid_file"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Ledger      LedgerConfig    `yaml:"ledger"`
	Engine      EngineConfig    `yaml:"engine"`
	Audio       AudioConfig     `yaml:"audio"`
}

func Default() Config {
	return Config{
		ServiceName: "speakup-core",
		Environment: "development",
		PIDFile:     "./data/speakup.pid",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 7849,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Ledger: LedgerConfig{
			Path:          "./data/speakup-history.db",
			RetentionDays: 7,
			HistoryLimit:  100,
		},
		Engine: EngineConfig{
			Mode:         "mock",
			SampleRate:   22050,
			ChunkSamples: 4096,
		},
		Audio: AudioConfig{
			TailDrainMS:       150,
			MonitorIntervalMS: 2000,
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
	overrideString(&cfg.ServiceName, "SPEAKUP_SERVICE_NAME")
	overrideString(&cfg.Environment, "SPEAKUP_ENVIRONMENT")
	overrideString(&cfg.PIDFile, "SPEAKUP_PID_FILE")
	overrideString(&cfg.HTTP.Bind, "SPEAKUP_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SPEAKUP_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SPEAKUP_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SPEAKUP_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SPEAKUP_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Ledger.Path, "SPEAKUP_LEDGER_PATH")
	overrideInt(&cfg.Ledger.RetentionDays, "SPEAKUP_LEDGER_RETENTION_DAYS")
	overrideInt(&cfg.Ledger.HistoryLimit, "SPEAKUP_LEDGER_HISTORY_LIMIT")
	overrideBool(&cfg.Ledger.VacuumOnStart, "SPEAKUP_LEDGER_VACUUM_ON_START")
	overrideString(&cfg.Engine.Mode, "SPEAKUP_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "SPEAKUP_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Voice, "SPEAKUP_ENGINE_VOICE")
	overrideInt(&cfg.Engine.SampleRate, "SPEAKUP_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.ChunkSamples, "SPEAKUP_ENGINE_CHUNK_SAMPLES")
	overrideInt(&cfg.Audio.TailDrainMS, "SPEAKUP_AUDIO_TAIL_DRAIN_MS")
	overrideInt(&cfg.Audio.MonitorIntervalMS, "SPEAKUP_AUDIO_MONITOR_INTERVAL_MS")
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

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.PIDFile == "" {
		return errors.New("pid_file must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Ledger.Path == "" {
		return errors.New("ledger.path must not be empty")
	}
	if cfg.Ledger.RetentionDays < 0 {
		return errors.New("ledger.retention_days must be >= 0")
	}
	if cfg.Ledger.HistoryLimit <= 0 {
		return errors.New("ledger.history_limit must be >= 1")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
		// ok
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.ChunkSamples <= 0 {
		return errors.New("engine.chunk_samples must be positive")
	}
	if cfg.Audio.TailDrainMS < 0 {
		return errors.New("audio.tail_drain_ms must be >= 0")
	}
	if cfg.Audio.MonitorIntervalMS <= 0 {
		return errors.New("audio.monitor_interval_ms must be positive")
	}
	return nil
}
