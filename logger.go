package main

import (
	"fmt"
	"io"
	"log/slog"
)

// newLogger builds the logger for the whole run, writing to w in the given format.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	handlerOpts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "console", "":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return slog.New(handler), nil
}

// logLevel maps the verbose/quiet flags to a level name.
func (o *options) logLevel() string {
	switch {
	case o.verbose:
		return "debug"
	case o.quiet:
		return "warn"
	default:
		return "info"
	}
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
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
