package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger type passed to provider clients and stores.
type Logger = zerolog.Logger

// NewLogger returns an info level JSON logger, or a debug level console
// logger when appEnv is "development".
func NewLogger(appEnv string) zerolog.Logger {
	if appEnv == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel).
			With().
			Timestamp().
			Str("service", "dressup").
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Str("service", "dressup").
		Logger()
}
