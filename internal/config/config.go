// Package config loads participant configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all participant configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Identity
	DomainId        int32  `env:"RTPS_DOMAIN_ID" envDefault:"0"`
	DomainTag       string `env:"RTPS_DOMAIN_TAG" envDefault:""`
	ParticipantName string `env:"RTPS_PARTICIPANT_NAME" envDefault:""`
	Interface       string `env:"RTPS_INTERFACE" envDefault:""`

	// Discovery
	SPDPLeaseDuration time.Duration `env:"RTPS_SPDP_LEASE_DURATION" envDefault:"9s"`

	// Resource limits
	CPULimit      float64 `env:"RTPS_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit   int64   `env:"RTPS_MEMORY_LIMIT" envDefault:"536870912"` // 512MB
	MaxGoroutines int     `env:"RTPS_MAX_GOROUTINES" envDefault:"1000"`

	// Rate limiting
	MaxAnnounceRate int `env:"RTPS_MAX_ANNOUNCE_RATE" envDefault:"50"`   // SPDP/SEDP announce pacing
	MaxOutboundRate int `env:"RTPS_MAX_OUTBOUND_RATE" envDefault:"2000"` // general submessage pacing

	// CPU safety thresholds
	CPURejectThreshold float64 `env:"RTPS_CPU_REJECT_THRESHOLD" envDefault:"75.0"` // reject new endpoints above this %
	CPUPauseThreshold  float64 `env:"RTPS_CPU_PAUSE_THRESHOLD" envDefault:"80.0"`  // pause discovery processing above this %

	// Monitoring
	MetricsAddr     string        `env:"RTPS_METRICS_ADDR" envDefault:":9002"`
	MetricsInterval time.Duration `env:"RTPS_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from a .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.DomainId < 0 || c.DomainId > 232 {
		return fmt.Errorf("RTPS_DOMAIN_ID must be 0-232, got %d", c.DomainId)
	}
	if c.MaxGoroutines < 1 {
		return fmt.Errorf("RTPS_MAX_GOROUTINES must be > 0, got %d", c.MaxGoroutines)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("RTPS_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < 0 || c.CPUPauseThreshold > 100 {
		return fmt.Errorf("RTPS_CPU_PAUSE_THRESHOLD must be 0-100, got %.1f", c.CPUPauseThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("RTPS_CPU_PAUSE_THRESHOLD (%.1f) must be >= RTPS_CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Int32("domain_id", c.DomainId).
		Str("participant_name", c.ParticipantName).
		Float64("cpu_limit", c.CPULimit).
		Int64("memory_limit_mb", c.MemoryLimit/(1024*1024)).
		Int("max_goroutines", c.MaxGoroutines).
		Int("max_announce_rate", c.MaxAnnounceRate).
		Int("max_outbound_rate", c.MaxOutboundRate).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Float64("cpu_pause_threshold", c.CPUPauseThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("participant configuration loaded")
}
