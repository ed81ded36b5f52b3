package buildcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with buildcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithLocation adds the cache location to the logger.
func (l *Logger) WithLocation(location string) *Logger {
	return &Logger{
		Logger: l.Logger.With("location", location),
	}
}

// WithPlugin adds a plugin name field to the logger.
func (l *Logger) WithPlugin(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("plugin", name),
	}
}

// LogInitialize logs opening the store.
func (l *Logger) LogInitialize(ctx context.Context, backend string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"backend", backend,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "store opened",
			"backend", backend,
		)
	}
}

// LogRead logs a full read of the file namespace.
func (l *Logger) LogRead(ctx context.Context, files int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "read failed",
			"files_read", files,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "read completed",
			"files", files,
		)
	}
}

// LogUpdate logs a batch update of file records.
func (l *Logger) LogUpdate(ctx context.Context, files int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"files", files,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "update completed",
			"files", files,
		)
	}
}

// LogClean logs wiping the cache from disk.
func (l *Logger) LogClean(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "clean failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cache cleaned")
	}
}

// LogTransfer logs a snapshot export or import.
func (l *Logger) LogTransfer(ctx context.Context, direction string, entries int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, direction+" failed",
			"entries", entries,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, direction+" completed",
			"entries", entries,
		)
	}
}
