// Package config loads and validates the medichat YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Registry  RegistryConfig  `yaml:"registry"`
	Emergency EmergencyConfig `yaml:"emergency"`
	UI        UIConfig        `yaml:"ui"`
}

// BackendConfig holds assistant backend connection settings.
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`    // per-request HTTP timeout
	TokenFile string        `yaml:"token_file"` // bearer credential file

	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Breaker   CircuitBreakerConfig `yaml:"breaker"`
}

// RateLimitConfig throttles outgoing sends.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`   // sustained requests per second
	Burst   int     `yaml:"burst"` // burst size
}

// CircuitBreakerConfig configures the backend circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"` // consecutive failures before the circuit opens
	Timeout     time.Duration `yaml:"timeout"`      // open duration before half-open
	Interval    time.Duration `yaml:"interval"`     // closed-state failure-count reset period
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// ArchiveConfig holds the local transcript archive settings.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`       // sqlite database file
	Passphrase string `yaml:"passphrase"` // at-rest encryption key material
}

// RegistryConfig holds session-registry refresh settings.
type RegistryConfig struct {
	RefreshSchedule string `yaml:"refresh_schedule"` // cron expression; empty disables auto-refresh
}

// EmergencyConfig holds the emergency-lookup settings.
type EmergencyConfig struct {
	Enabled       bool    `yaml:"enabled"`
	FacilitiesURL string  `yaml:"facilities_url"`
	Latitude      float64 `yaml:"latitude"`  // static observer position
	Longitude     float64 `yaml:"longitude"` // used when no live provider exists
	HasPosition   bool    `yaml:"has_position"`
	MaxResults    int     `yaml:"max_results"`
}

// UIConfig holds chat TUI settings.
type UIConfig struct {
	MarkdownRendering bool `yaml:"markdown_rendering"`
	MaxMessages       int  `yaml:"max_messages"` // live view ring buffer size
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 120 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     1,
				Burst:   3,
			},
			Breaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Archive: ArchiveConfig{
			Path: "medichat.db",
		},
		Emergency: EmergencyConfig{
			MaxResults: 5,
		},
		UI: UIConfig{
			MarkdownRendering: true,
			MaxMessages:       1000,
		},
	}
}

// Load reads the config file at path, merges it over Defaults, applies
// environment overrides and validates the result. A missing file is not an
// error; defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides lets the environment override deploy-sensitive fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDICHAT_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("MEDICHAT_TOKEN_FILE"); v != "" {
		cfg.Backend.TokenFile = v
	}
	if v := os.Getenv("MEDICHAT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MEDICHAT_ARCHIVE_KEY"); v != "" {
		cfg.Archive.Passphrase = v
	}
}
