// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() or FromEnv() to enable logging.
var L = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	// EnvLevel selects the minimum level ("debug", "info", "warn", "error").
	// Unset or empty keeps logging disabled.
	EnvLevel = "HEAPKIT_LOG"

	// EnvJSON switches the handler to JSON when non-empty.
	EnvJSON = "HEAPKIT_LOG_JSON"

	// EnvAlloc turns on per-block allocator logging to stderr.
	EnvAlloc = "HEAPKIT_LOG_ALLOC"
)

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Output  io.Writer  // Destination. Default: os.Stderr
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	JSON    bool       // JSON handler instead of text
}

// Init configures logging and returns the new logger.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) *slog.Logger {
	L = New(opts)
	return L
}

// New builds a logger without touching L.
func New(opts Options) *slog.Logger {
	if !opts.Enabled {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(out, hopts))
	}
	return slog.New(slog.NewTextHandler(out, hopts))
}

// FromEnv initializes L from HEAPKIT_LOG and HEAPKIT_LOG_JSON.
func FromEnv() *slog.Logger {
	raw := strings.TrimSpace(os.Getenv(EnvLevel))
	if raw == "" {
		return L
	}
	level, ok := ParseLevel(raw)
	return Init(Options{
		Enabled: ok,
		Level:   level,
		JSON:    os.Getenv(EnvJSON) != "",
	})
}

// ParseLevel maps a level name to slog.Level. ok is false for unknown names.
func ParseLevel(s string) (slog.Level, bool) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, false
	}
	return level, true
}

// AllocOr returns l when set. Otherwise it returns a stderr debug logger if
// HEAPKIT_LOG_ALLOC is set, and L if not.
func AllocOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	if os.Getenv(EnvAlloc) != "" {
		return New(Options{Enabled: true, Output: os.Stderr, Level: slog.LevelDebug})
	}
	return L
}

// Or returns l, or L when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return L
}
