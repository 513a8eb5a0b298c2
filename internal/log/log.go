// Package log provides the logging infrastructure shared by all inkwell
// components.
//
// Loggers are injected, never global: each component receives a log.Logger
// via its constructor and may narrow it with logger.With("component", ...).
// The HTTP server logs JSON; CLI commands log human-readable text.
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
//	store := document.NewStore(pool, logger.With("component", "document"))
//
//	// In tests:
//	logger := log.NewNop()
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a type alias for *slog.Logger. Using the standard library type
// directly keeps full slog compatibility (With, WithGroup, handlers) without
// a custom interface between components and their logs.
type Logger = *slog.Logger

// Config defines logger construction options.
type Config struct {
	// Level is the minimum level emitted. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output to JSON records. Default: text.
	JSON bool

	// AddSource annotates records with file:line of the call site.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests use this to capture
// output in a buffer.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards everything. Test use only; production
// callers always construct via New or NewWithWriter so failures stay visible.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a configuration string to a slog.Level. Unrecognized values
// fall back to Info so a typo in INKWELL_LOG_LEVEL never silences the process.
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
