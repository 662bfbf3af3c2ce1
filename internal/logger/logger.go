package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger represents application logger.
type Logger struct {
	*slog.Logger
}

// New creates new Logger instance with the specified level.
func New(level int) *Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter creates a Logger writing text records to w.
func NewWithWriter(w io.Writer, level int) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.Level(level)})),
	}
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Security logs a security-relevant event at warn level.
func (l *Logger) Security(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{"security", true}, args...)...)
}

// Fatal is equivalent to Error followed by os.Exit(1).
func (l *Logger) Fatal(msg string, args ...any) {
	l.Logger.Error(msg, args...)
	os.Exit(1)
}
