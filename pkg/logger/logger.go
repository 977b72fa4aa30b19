// Package logger provides structured logging utilities.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Options selects the encoder and level.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Development switches to a colored console encoder with stack traces on warn.
	Development bool
	// Service is attached to every entry when set.
	Service string
}

// New builds a logger. Production output is JSON on stdout.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var config zap.Config
	if opts.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.Sampling = nil
		config.OutputPaths = []string{"stdout"}
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	}
	config.Level = zap.NewAtomicLevelAt(level)

	zl, err := config.Build()
	if err != nil {
		return nil, err
	}
	if opts.Service != "" {
		zl = zl.With(zap.String("service", opts.Service))
	}
	return &Logger{Logger: zl}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named creates a child logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// WithRequest creates a child logger carrying request scoped fields.
func (l *Logger) WithRequest(correlationID, userID string) *Logger {
	return l.With(
		zap.String("correlation_id", correlationID),
		zap.String("user_id", userID),
	)
}

// SetGlobal installs l as zap's global logger and redirects the standard
// library logger to it. The returned func restores the previous state.
func SetGlobal(l *Logger) func() {
	undoGlobals := zap.ReplaceGlobals(l.Logger)
	undoStd := zap.RedirectStdLog(l.Logger)
	return func() {
		undoStd()
		undoGlobals()
	}
}
