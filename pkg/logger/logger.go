// Package logger builds the zerolog.Logger used across the application.
// Every component receives a logger pre-scoped with a "component" field via
// log.With().Str("component", name).Logger(), the convention used throughout
// the scheduler and provider clients.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output instead of JSON
}

// New builds a zerolog.Logger from Config. An unrecognised Level falls back
// to info rather than failing startup over a typo in LOG_LEVEL.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stdout
	logCtx := zerolog.New(writer).Level(level).With().Timestamp()

	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
		return zerolog.New(console).Level(level).With().Timestamp().Logger()
	}

	return logCtx.Logger()
}
