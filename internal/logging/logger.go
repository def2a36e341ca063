package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	baseMu sync.RWMutex
	base   = zap.NewNop()
)

// Setup installs the process-wide zap logger. Development mode gets the
// human-readable console encoder, everything else gets JSON.
func Setup(env string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if env == "development" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	baseMu.Lock()
	base = l
	baseMu.Unlock()

	return l, nil
}

// Sync flushes the process-wide logger.
func Sync() {
	baseMu.RLock()
	defer baseMu.RUnlock()
	_ = base.Sync()
}

// Logger provides structured logging for one component
type Logger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewLogger creates a new logger named after the component
func NewLogger(prefix string) *Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return &Logger{
		prefix: prefix,
		sugar:  base.Named(prefix).Sugar(),
	}
}

// FromZap wraps an existing zap logger.
func FromZap(prefix string, l *zap.Logger) *Logger {
	return &Logger{prefix: prefix, sugar: l.Named(prefix).Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{prefix: "nop", sugar: zap.NewNop().Sugar()}
}

// With returns a child logger that carries the given key-value pairs on every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, sugar: l.sugar.With(keysAndValues...)}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}
