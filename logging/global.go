// Package logging wraps slog with a process-wide service: console text
// output plus a weekly-rotated JSON file, and package-level helpers that
// stay safe to call before initialization.
package logging

import (
	"log/slog"
	"os"
)

type LoggingService struct {
	Logger *slog.Logger
}

var DefaultLoggingService *LoggingService

// InitLogger initializes the global logger. An empty logDir keeps
// logging on the console only, which is what the tests use.
func InitLogger(logDir string) {
	DefaultLoggingService = &LoggingService{
		Logger: SetupLogger(logDir),
	}
	slog.SetDefault(DefaultLoggingService.Logger)
}

// fallback builds a stderr text logger for calls that arrive before
// InitLogger has run.
func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func active(level slog.Level) *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return fallback(level)
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	active(slog.LevelInfo).Info(msg, args...)
}

func Warn(msg string, args ...any) {
	active(slog.LevelWarn).Warn(msg, args...)
}

func Error(msg string, args ...any) {
	active(slog.LevelError).Error(msg, args...)
}

func Debug(msg string, args ...any) {
	active(slog.LevelDebug).Debug(msg, args...)
}
