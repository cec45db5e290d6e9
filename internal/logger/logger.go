// Package logger
package logger

import (
	"context"
	"io"
	"log/slog"

	"dockreclaim/internal/config"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New logs to w, which is stderr in the binary; stdout belongs to the
// reclaim output.
func New(cfg *config.Config, w io.Writer) Logger {
	return NewWithWriter(w, cfg.LogLevel, cfg.LogFormat)
}

func NewWithWriter(w io.Writer, level, format string) Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &slogLogger{l: slog.New(handler)}
}

func Nop() Logger {
	return NewWithWriter(io.Discard, "error", "text")
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// Enabled reports whether debug output would be written. Verbose step
// output uses it to skip line scanning when nobody would see it.
func Enabled(log Logger, level slog.Level) bool {
	if s, ok := log.(*slogLogger); ok {
		return s.l.Enabled(context.Background(), level)
	}
	return true
}

func parseLevel(level string) slog.Level {
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
