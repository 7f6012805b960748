// Package logging builds the process logger. Console output uses the text
// handler; file output goes through lumberjack rotation as JSON. The level
// is held in a slog.LevelVar so config reloads can adjust it at runtime.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with a runtime-adjustable level.
type Logger struct {
	*slog.Logger

	level  *slog.LevelVar
	closer io.Closer
}

// Option configures New.
type Option func(*settings)

type settings struct {
	file       string
	maxSizeMB  int
	maxBackups int
	out        io.Writer
}

// WithFile routes JSON logs to path with rotation instead of stderr.
func WithFile(path string) Option {
	return func(s *settings) { s.file = path }
}

// WithRotation tunes the rotated file size cap (MB) and backup count.
// Defaults are 64 MB and 3 backups.
func WithRotation(maxSizeMB, maxBackups int) Option {
	return func(s *settings) {
		if maxSizeMB > 0 {
			s.maxSizeMB = maxSizeMB
		}
		if maxBackups >= 0 {
			s.maxBackups = maxBackups
		}
	}
}

// WithWriter overrides the console writer. Ignored when a file is set.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.out = w }
}

// New builds a Logger at the given level ("debug", "info", "warn",
// "error"; anything else means info).
func New(level string, opts ...Option) *Logger {
	s := settings{
		maxSizeMB:  64,
		maxBackups: 3,
		out:        os.Stderr,
	}
	for _, opt := range opts {
		opt(&s)
	}

	lv := &slog.LevelVar{}
	lv.Set(parseLevel(level))

	l := &Logger{level: lv}
	if s.file != "" {
		w := &lumberjack.Logger{
			Filename:   s.file,
			MaxSize:    s.maxSizeMB,
			MaxBackups: s.maxBackups,
			Compress:   true,
		}
		l.closer = w
		l.Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv}))
	} else {
		l.Logger = slog.New(slog.NewTextHandler(s.out, &slog.HandlerOptions{Level: lv}))
	}
	return l
}

// SetLevel adjusts the minimum level of all handlers built by New.
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// Close flushes and closes the rotated log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
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
