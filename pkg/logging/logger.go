// Package logging configures zerolog for the cache server and library users.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `env:"LOG_LEVEL" envDefault:"info"`

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool `env:"LOG_PRETTY" envDefault:"false"`

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// LoadConfig reads LOG_LEVEL and LOG_PRETTY from the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse logging config: %w", err)
	}
	return cfg, nil
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// parseLevel maps a LogLevel to zerolog, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(string(level)))
	if s == "warning" {
		s = "warn"
	}
	switch lvl, err := zerolog.ParseLevel(s); {
	case err != nil, s == "", lvl == zerolog.NoLevel:
		return zerolog.InfoLevel
	default:
		return lvl
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-operation detail
//   - Cache set/get/invalidate (key, size_bytes, tier, ttl)
//   - Cleanup cycle results (expired, evicted, duration)
//   - Source fetches and background refreshes
//
// Info: state changes an operator cares about
//   - Memory ceiling resized, cleanup interval adjusted
//   - Memory cleanup evicted entries, cache cleared
//   - Server startup/shutdown
//
// Warn: degraded but working
//   - Memory pressure (write admitted over budget)
//   - Compression failures, undecodable entries
//   - Memory probe failures, source retries
//
// Error: needs attention
//   - Recovered cleanup panics
//   - Source retries exhausted, server errors
//
// Context Fields:
//   - component: emitting package
//   - key, tags, tier, size_bytes, ttl
//   - max_memory, total_bytes, needed_bytes
//   - error_class: source error classification
