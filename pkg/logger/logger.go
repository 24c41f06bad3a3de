// Package logger builds the process-wide slog logger. Every package receives
// it by injection; none construct handlers of their own.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New creates the text logger for the given level. Every record carries the
// service attribute so lines from co-located processes stay attributable.
func New(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With(slog.String("service", "notifications"))
}

// parseLevel maps a config string to a slog level, defaulting to info.
func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
