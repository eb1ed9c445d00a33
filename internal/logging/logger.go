// Package logging provides structured logging with request/trace ID support
// for every kernel component.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried alongside a request.
type ContextKey string

const (
	// TraceIDKey is the context key for the correlation ID of a dispatcher call.
	TraceIDKey ContextKey = "trace_id"
	// PrincipalIDKey is the context key for the acting principal.
	PrincipalIDKey ContextKey = "principal_id"
)

// Logger wraps logrus.Logger with a fixed component name.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls logger construction.
type Config struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	Format    string `yaml:"format" env:"LOG_FORMAT"`
	Component string `yaml:"-"`
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: cfg.Component}
}

// NewDefault builds a Logger with info level, text format, stdout output.
func NewDefault(component string) *Logger {
	return New(Config{Level: "info", Format: "text", Component: component})
}

// WithContext attaches trace and principal IDs found on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.WithField("component", l.component)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(PrincipalIDKey); v != nil {
		entry = entry.WithField("principal_id", v)
	}
	return entry
}

// ContextWithTrace returns a child context carrying the given trace ID.
func ContextWithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ContextWithPrincipal returns a child context carrying the given principal ID.
func ContextWithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, PrincipalIDKey, principalID)
}
