// Package logging constructs the zerolog logger used across the server.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log output encoding.
type Format string

const (
	FormatJSON   Format = "json"   // machine-readable, for log shippers
	FormatPretty Format = "pretty" // human-readable, for local dev
)

// Config holds logger settings.
type Config struct {
	Level  string // debug, info, warn, error, fatal
	Format Format
}

// New creates a structured logger with timestamps and a service field.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "foxbridge").
		Logger()
}
