// Package logger provides the structured logger used across the module. It is
// a thin layer over zap's SugaredLogger with alternating key/value pairs:
//
//	log := logger.Default().With("component", "logstore")
//	log.Info("database opened", "path", path)
package logger

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging contract consumed by every package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// With returns a child logger that adds the given key/value pairs to
	// every entry.
	With(keysAndValues ...any) Logger

	// Sync flushes buffered entries.
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New wraps an existing zap logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Sync() error { return l.s.Sync() }

// ParseLevel converts a level name (debug, info, warn, error) into a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return lvl, fmt.Errorf("logger: invalid level %q: %w", name, err)
	}
	return lvl, nil
}

// NewProduction builds a JSON logger at the given level.
func NewProduction(level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build production logger: %w", err)
	}
	return New(z), nil
}

// MustProduction is NewProduction at info level that panics on error.
func MustProduction() Logger {
	l, err := NewProduction("info")
	if err != nil {
		panic(err)
	}
	return l
}

// NewDevelopment builds a human-readable console logger.
func NewDevelopment(level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build development logger: %w", err)
	}
	return New(z), nil
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return New(zap.NewNop())
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	l := Nop()
	defaultLogger.Store(&l)
}

// Default returns the process-wide logger. It discards output until
// SetDefault is called.
func Default() Logger {
	return *defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	if l == nil {
		l = Nop()
	}
	defaultLogger.Store(&l)
}

// SyncDefault flushes the process-wide logger.
func SyncDefault() {
	_ = Default().Sync()
}

// Fatal logs at error level through the default logger, flushes it and exits.
func Fatal(msg string, keysAndValues ...any) {
	Default().Error(msg, keysAndValues...)
	SyncDefault()
	os.Exit(1)
}
