package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// OperationKey is the attribute that ties together every line logged for
// one logical operation.
const OperationKey = "op_id"

// Setup configures the global slog.Default() logger with the given format and level.
// format: "text" (human-readable) or "json" (structured).
// level: "debug", "info", "warn", "error".
func Setup(format, level string) *slog.Logger {
	return SetupWriter(os.Stderr, format, level, nil)
}

// SetupWriter is Setup writing to w. When wrap is non-nil it decorates the
// handler before the logger is built (used to scrub secrets).
func SetupWriter(w io.Writer, format, level string, wrap func(slog.Handler) slog.Handler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	if wrap != nil {
		handler = wrap(handler)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a level string to slog.Level.
// Defaults to slog.LevelInfo for unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewOperationID returns a fresh operation id.
func NewOperationID() string {
	return uuid.NewString()
}

// ForOperation returns l tagged with opID.
func ForOperation(l *slog.Logger, opID string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String(OperationKey, opID))
}

// Discard returns a *slog.Logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
