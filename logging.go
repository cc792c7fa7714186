package opsboard

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a text logger on stderr with the given level string.
// Returns the logger and the LevelVar so the level can be updated at runtime.
func NewLogger(level string) (*slog.Logger, *slog.LevelVar) {
	return NewLoggerWithFormat(os.Stderr, level, "text")
}

// NewLoggerWithFormat creates a logger writing to w in "text" or "json"
// format. Unknown formats fall back to text.
func NewLoggerWithFormat(w io.Writer, level, format string) (*slog.Logger, *slog.LevelVar) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(ParseLogLevel(level))
	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), levelVar
}

// ParseLogLevel converts a log level string to slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
