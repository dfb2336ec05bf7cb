package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger on stdout.
func New(level string, json bool) *slog.Logger {
	return NewWithWriter(os.Stdout, level, json)
}

// NewWithWriter is New with an explicit destination; the TUI logs to a file
// so it does not draw over the screen.
func NewWithWriter(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level), AddSource: true}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
