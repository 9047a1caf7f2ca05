// Package logger provides structured logging for the bridge layer.
// It wraps logrus so call sites carry a component field and can chain
// contextual fields without touching the underlying library directly.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	entry *logrus.Entry
}

// NewDefault returns a logger for the given component writing to stderr.
// The level is taken from LOG_LEVEL (debug, info, warn, error), defaulting
// to info.
func NewDefault(component string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	return &Logger{entry: l.WithField("component", component)}
}

// New returns a logger with an explicit output and level, used by tests.
func New(component string, out io.Writer, level string) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(parseLevel(level))
	return &Logger{entry: l.WithField("component", component)}
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithField returns a logger carrying an extra structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError returns a logger carrying the error as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...any) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...any)  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...any)  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...any) { l.entry.Error(args...) }

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
