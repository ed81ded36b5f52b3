// Package logging provides a configured slog logger for the buildcache CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the default slog logger used by the CLI.
type Options struct {
	// Verbose toggles debug level logging when true.
	Verbose bool
	// JSON switches from text to JSON output.
	JSON bool
	// Writer directs log output; defaults to os.Stderr when nil.
	Writer io.Writer
}

// New constructs a slog.Logger with CLI defaults.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(writer, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(writer, handlerOpts))
}
