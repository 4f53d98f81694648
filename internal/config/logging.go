package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// SetupLogger builds the process logger: JSON to stdout, and when logFile is
// set, JSON to that file as well. The returned func closes the file.
func SetupLogger(level, logFile string) (*slog.Logger, func() error) {
	lvl := ParseLevel(level)
	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	if logFile == "" {
		return slog.New(stdout), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stdout)
		logger.Error("failed to open log file, logging to stdout only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})
	return slog.New(slogmulti.Fanout(stdout, fileHandler)), file.Close
}

// SetupLoggerWithWriters fans out to two arbitrary writers.
func SetupLoggerWithWriters(primary, secondary io.Writer, level string) *slog.Logger {
	lvl := ParseLevel(level)
	return slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(primary, &slog.HandlerOptions{Level: lvl}),
		slog.NewJSONHandler(secondary, &slog.HandlerOptions{Level: lvl}),
	))
}
