package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logger.V(). logr level N maps to zap level -N.
const (
	DEBUG = 1
	TRACE = 2
)

// Options configures the process logger.
type Options struct {
	// Level is one of "error", "warn", "info", "debug" or "trace".
	Level string
	// Development switches to the console encoder with caller and stacktrace annotations.
	Development bool
}

var (
	mu   sync.RWMutex
	base = logr.Discard()
)

// NewLogger builds a zap-backed logr.Logger. The returned *zap.Logger is handed
// back so callers can Sync it on shutdown.
func NewLogger(opts Options) (logr.Logger, *zap.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return logr.Discard(), nil, err
	}

	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("building zap logger: %w", err)
	}
	return zapr.NewLogger(zl), zl, nil
}

// ParseLevel converts a level name into the zap level used for the logr sink.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.Level(-DEBUG), nil
	case "trace":
		return zapcore.Level(-TRACE), nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLogger replaces the process-wide fallback logger.
func SetLogger(l logr.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Log returns the process-wide fallback logger.
func Log() logr.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// FromContext returns the logger carried by ctx, or the process-wide logger.
func FromContext(ctx context.Context) logr.Logger {
	if ctx != nil {
		if l, err := logr.FromContext(ctx); err == nil {
			return l
		}
	}
	return Log()
}

// IntoContext attaches l to ctx.
func IntoContext(ctx context.Context, l logr.Logger) context.Context {
	return logr.NewContext(ctx, l)
}

// NewTestLogger installs a development logger at trace verbosity as the
// process-wide logger and returns it.
func NewTestLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	l := zapr.NewLogger(zl)
	SetLogger(l)
	return l
}
