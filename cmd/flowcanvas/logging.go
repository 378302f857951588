package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// setupLogger builds the process logger. Unknown levels fall back to info
// and unknown formats to text; debug also records the call site.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", appName, "version", Version, "pid", os.Getpid())
}
