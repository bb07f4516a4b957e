package logger

import (
	"log/slog"
	"strings"

	"github.com/go-co-op/gocron/v2"
)

// gocronLogger implements gocron.Logger on top of slog. gocron's own info
// messages are lifecycle chatter, so they are logged at debug level.
type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger returns a gocron.Logger writing to log.
//
//nolint:ireturn // gocron's option takes the interface
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	if log == nil {
		log = slog.Default()
	}
	return &gocronLogger{log: log.With("component", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) {
	l.log.Debug(trimPrefix(msg), args...)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.log.Debug(trimPrefix(msg), args...)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.log.Warn(trimPrefix(msg), args...)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.log.Error(trimPrefix(msg), args...)
}

func trimPrefix(msg string) string {
	return strings.TrimPrefix(msg, "gocron: ")
}
