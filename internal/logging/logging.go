// Package logging builds the structured loggers used by the servers and the
// CLI, and carries them through context.Context.
package logging

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// New creates a timestamped logger writing to w at the named level. Unknown
// level names fall back to info.
func New(w io.Writer, level string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           ParseLevel(level),
	})
}

// ParseLevel maps a config level name to a log level
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

type ctxKey int

const loggerKey ctxKey = 0

// WithLogger returns a context carrying l
func WithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx, or log.Default()
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
