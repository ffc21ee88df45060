// Package logging wraps logrus behind a small interface so the rest of the
// engine logs through Logger rather than depending on logrus directly.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus's level set at the granularity the engine uses.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel parses a string into a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects logrus's text or JSON formatter.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat parses a string into a Format, defaulting to FormatText.
func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// Logger is the structured logging interface every subsystem (transaction
// manager, garbage collector, WAL serializer/disk writer) logs through.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	// WithFields returns a derived logger that always includes the given
	// key-value pairs, e.g. per-transaction or per-segment context.
	WithFields(keysAndValues ...interface{}) Logger
}

// Config holds the logger configuration, loaded from internal/config.
type Config struct {
	Level  string
	Format string
	Output string // "stdout", "stderr", or a file path
}

// logrusLogger adapts *logrus.Entry to Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// New creates a Logger backed by logrus per cfg.
func New(cfg Config) Logger {
	base := logrus.New()
	base.SetLevel(ParseLevel(cfg.Level).logrusLevel())
	if ParseFormat(cfg.Format) == FormatJSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch cfg.Output {
	case "", "stdout":
		base.SetOutput(os.Stdout)
	case "stderr":
		base.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			base.SetOutput(os.Stdout)
		} else {
			base.SetOutput(f)
		}
	}

	return &logrusLogger{entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level, text-format logger writing to stdout.
func NewDefault() Logger {
	return New(Config{Level: "info", Format: "text", Output: "stdout"})
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *logrusLogger) Debug(msg string, kv ...interface{}) { l.fieldsFrom(kv).Debug(msg) }
func (l *logrusLogger) Info(msg string, kv ...interface{})  { l.fieldsFrom(kv).Info(msg) }
func (l *logrusLogger) Warn(msg string, kv ...interface{})  { l.fieldsFrom(kv).Warn(msg) }
func (l *logrusLogger) Error(msg string, kv ...interface{}) { l.fieldsFrom(kv).Error(msg) }

func (l *logrusLogger) WithFields(kv ...interface{}) Logger {
	return &logrusLogger{entry: l.fieldsFrom(kv)}
}

func (l *logrusLogger) fieldsFrom(kv []interface{}) *logrus.Entry {
	if len(kv) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return l.entry.WithFields(fields)
}
