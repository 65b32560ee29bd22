// Package logging provides structured logging built on zerolog.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Console switches to human-readable output instead of JSON.
	Console bool `json:"console"`
}

// DefaultConfig returns JSON logging at info level.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// New creates the root logger. Component loggers are derived from it with
// logger.With().Str("component", ...).Logger().
func New(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Console {
		writer := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		return zerolog.New(writer).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
