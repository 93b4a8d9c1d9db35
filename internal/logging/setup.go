package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup builds the process logger. Output always goes to stderr: the stdio
// transport owns stdout, so anything written there corrupts the protocol
// stream.
func Setup(format string, debug bool) *slog.Logger {
	return SetupWithWriter(os.Stderr, format, debug)
}

// SetupWithWriter is Setup with an explicit destination (tests).
func SetupWithWriter(w io.Writer, format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
