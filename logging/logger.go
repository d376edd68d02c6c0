// Package logging wraps log/slog with the conventions used across the
// sync engine: structured attributes, component-scoped child loggers,
// and first-class rendering of engine errors.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/frndly/statesync/errors"
)

// Logger wraps slog.Logger with engine-specific helpers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level       string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format      string `json:"format" yaml:"format"`           // text, json
	AddSource   bool   `json:"add_source" yaml:"add_source"`   // include caller info
	Environment string `json:"environment" yaml:"environment"` // development, production, test
}

// DefaultConfig is a production-leaning default.
var DefaultConfig = Config{
	Level:       "info",
	Format:      "json",
	AddSource:   false,
	Environment: EnvProduction,
}

var defaultLogger *Logger

// SyncErrorValuer renders a SyncError as a structured group instead of
// a flat message string.
type SyncErrorValuer struct {
	*errors.SyncError
}

func (e SyncErrorValuer) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("operation", string(e.Op)),
		slog.String("component", e.Component),
		slog.String("code", string(e.Code)),
		slog.Bool("retryable", e.Retryable),
		slog.String("error", e.Err.Error()),
	}
	if len(e.Metadata) > 0 {
		metaAttrs := make([]slog.Attr, 0, len(e.Metadata))
		for k, v := range e.Metadata {
			metaAttrs = append(metaAttrs, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Any("metadata", slog.GroupValue(metaAttrs...)))
	}
	return slog.GroupValue(attrs...)
}

// NewLogger creates a logger from the given configuration.
func NewLogger(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "text" || config.Environment == EnvDevelopment {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return &Logger{Logger: slog.New(handler)}
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

// Init installs the global logger and makes it the slog default.
func Init(config Config) {
	defaultLogger = NewLogger(config)
	slog.SetDefault(defaultLogger.Logger)
}

// Default returns the global logger, initializing it lazily.
func Default() *Logger {
	if defaultLogger == nil {
		Init(DefaultConfig)
	}
	return defaultLogger
}

// WithComponent creates a child logger scoped to one engine component
// ("manager", "queue", "resolver", ...).
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}

// WithDataType creates a child logger scoped to one data type.
func (l *Logger) WithDataType(dataType string) *Logger {
	return &Logger{Logger: l.With(slog.String("data_type", dataType))}
}

// LogError logs an error with its structured representation when it is
// a SyncError.
func (l *Logger) LogError(ctx context.Context, err error, msg string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+1)
	if syncErr, ok := err.(*errors.SyncError); ok {
		args = append(args, slog.Any("sync_error", SyncErrorValuer{SyncError: syncErr}))
	} else {
		args = append(args, slog.String("error", err.Error()))
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	l.ErrorContext(ctx, msg, args...)
}
