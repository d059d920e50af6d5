// Package logging configures Singleload's process-wide logger. Unlike
// the daemon this pattern is borrowed from, there is no file rotation
// or OTEL bridge here — a short-lived CLI invocation logs to stderr for
// the lifetime of the process and nothing more.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the console writer used by New.
type Format int

const (
	// FormatJSON emits one JSON object per line, the default.
	FormatJSON Format = iota
	// FormatText emits zerolog's human-readable console writer.
	FormatText
)

// New builds a stderr logger. debug raises the level to zerolog.DebugLevel;
// otherwise the level is zerolog.InfoLevel.
func New(format Format, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	switch format {
	case FormatText:
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(writer)
	default:
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
