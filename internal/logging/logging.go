// Package logging wraps zerolog behind a package-level Log, an
// Initialize(level, pretty) entrypoint, and per-subsystem child
// loggers. Named logging rather than logger to avoid shadowing the
// standard library's log package.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, configured by Initialize. Until
// then it discards everything, so library consumers and tests that
// never call Initialize stay silent.
var Log = zerolog.Nop()

// Initialize sets up the global logger.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "secretsd").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Processor creates a logger for Request Dispatcher / Completion
// Handler events.
func Processor() *zerolog.Logger {
	l := Log.With().Str("component", "processor").Logger()
	return &l
}

// Plugin creates a logger for plugin load/classification/call events.
func Plugin() *zerolog.Logger {
	l := Log.With().Str("component", "plugin").Logger()
	return &l
}

// Bookkeeping creates a logger for metadata-store events.
func Bookkeeping() *zerolog.Logger {
	l := Log.With().Str("component", "bookkeeping").Logger()
	return &l
}

// Bus creates a logger for plugin-signal transport events.
func Bus() *zerolog.Logger {
	l := Log.With().Str("component", "bus").Logger()
	return &l
}
