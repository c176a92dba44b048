package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers to
// inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBackend(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateArchive(cfg, ve)
	validateEmergency(cfg, ve)
	validateUI(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBackend(cfg *Config, ve *ValidationError) {
	if cfg.Backend.BaseURL == "" {
		ve.Add("backend.base_url must not be empty")
	} else if _, err := url.Parse(cfg.Backend.BaseURL); err != nil {
		ve.Add("backend.base_url is not a valid URL: %v", err)
	}
	if cfg.Backend.Timeout <= 0 {
		ve.Add("backend.timeout must be > 0")
	}
	if cfg.Backend.RateLimit.Enabled {
		if cfg.Backend.RateLimit.RPS <= 0 {
			ve.Add("backend.rate_limit.rps must be > 0 when rate limiting is enabled")
		}
		if cfg.Backend.RateLimit.Burst <= 0 {
			ve.Add("backend.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level must be one of debug, info, warn, error (got %q)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format must be text or json (got %q)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter must be stdout or noop (got %q)", cfg.Tracer.Exporter)
	}
}

func validateArchive(cfg *Config, ve *ValidationError) {
	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		ve.Add("archive.path must not be empty when the archive is enabled")
	}
}

func validateEmergency(cfg *Config, ve *ValidationError) {
	if !cfg.Emergency.Enabled {
		return
	}
	if cfg.Emergency.FacilitiesURL == "" {
		ve.Add("emergency.facilities_url must not be empty when emergency lookup is enabled")
	}
	if cfg.Emergency.MaxResults <= 0 {
		ve.Add("emergency.max_results must be > 0")
	}
	if cfg.Emergency.HasPosition {
		if cfg.Emergency.Latitude < -90 || cfg.Emergency.Latitude > 90 {
			ve.Add("emergency.latitude must be within [-90, 90]")
		}
		if cfg.Emergency.Longitude < -180 || cfg.Emergency.Longitude > 180 {
			ve.Add("emergency.longitude must be within [-180, 180]")
		}
	}
}

func validateUI(cfg *Config, ve *ValidationError) {
	if cfg.UI.MaxMessages <= 0 {
		ve.Add("ui.max_messages must be > 0")
	}
}
