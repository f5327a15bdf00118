// Package config loads server configuration from environment variables with
// an optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all runtime configuration for the foxbridge server.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Server basics
	Addr string `env:"FB_ADDR" envDefault:":8765"`
	Name string `env:"FB_NAME" envDefault:"foxbridge"`

	// Protocol surface
	Capabilities       []string `env:"FB_CAPABILITIES" envSeparator:"," envDefault:"clientPublish,services,parameters,parametersSubscribe,time"`
	SupportedEncodings []string `env:"FB_SUPPORTED_ENCODINGS" envSeparator:"," envDefault:"json"`

	// Capacity
	MaxConnections int `env:"FB_MAX_CONNECTIONS" envDefault:"500"`
	SendQueueSize  int `env:"FB_SEND_QUEUE_SIZE" envDefault:"256"`

	// Per-client inbound rate limiting (0 disables)
	ClientMsgsPerSec float64 `env:"FB_CLIENT_MSGS_PER_SEC" envDefault:"0"`
	ClientMsgBurst   int     `env:"FB_CLIENT_MSG_BURST" envDefault:"100"`

	// NATS ingest bridge (empty URL disables)
	NATSUrl      string   `env:"NATS_URL"`
	NATSSubjects []string `env:"NATS_SUBJECTS" envSeparator:"," envDefault:"fox.msg.>"`

	// Endpoints
	MetricsEnabled bool `env:"FB_METRICS" envDefault:"true"`
	HealthEnabled  bool `env:"FB_HEALTH" envDefault:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file and environment variables.
// Priority: env vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in production the environment is
	// injected directly.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Debug().Msg("No .env file found (using environment variables only)")
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
	if c.Addr == "" {
		return fmt.Errorf("FB_ADDR is required")
	}
	if c.Name == "" {
		return fmt.Errorf("FB_NAME is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("FB_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.SendQueueSize < 1 {
		return fmt.Errorf("FB_SEND_QUEUE_SIZE must be > 0, got %d", c.SendQueueSize)
	}
	if c.ClientMsgsPerSec < 0 {
		return fmt.Errorf("FB_CLIENT_MSGS_PER_SEC must be >= 0, got %f", c.ClientMsgsPerSec)
	}
	if c.ClientMsgsPerSec > 0 && c.ClientMsgBurst < 1 {
		return fmt.Errorf("FB_CLIENT_MSG_BURST must be > 0 when rate limiting is enabled, got %d", c.ClientMsgBurst)
	}
	return nil
}
