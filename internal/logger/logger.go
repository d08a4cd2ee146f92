// Package logger provides the service-wide zerolog configuration.
package logger

import (
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// New returns a JSON logger on stdout tagged with the service name.
// Call sites should use .Stack() on error events to include stacks.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(serviceName, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(serviceName string, w io.Writer) zerolog.Logger {
	// Stacks come from github.com/pkg/errors; plain errors get one attached
	// at the logging site.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(w).
		Level(levelFromEnv()).
		With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// levelFromEnv reads ONION_LOG_LEVEL; unknown or empty values mean info.
func levelFromEnv() zerolog.Level {
	raw := strings.TrimSpace(os.Getenv("ONION_LOG_LEVEL"))
	if raw == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
