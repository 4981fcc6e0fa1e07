// Package logging builds the process logger: a logr.Logger backed by zap.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/luadebug/internal/config"
)

// Logger is a logr.Logger with an adjustable level.
type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
	closer      io.Closer
}

// Option configures New.
type Option func(*options)

type options struct {
	out io.Writer
}

// WithOutput writes log lines to w instead of stderr. It is ignored when the
// configuration names a log file.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New creates a logger from cfg.
func New(cfg config.LogConfig, opts ...Option) (*Logger, error) {
	o := options{out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var sink zapcore.WriteSyncer
	var closer io.Closer
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		sink = zapcore.Lock(f)
		closer = f
	} else {
		sink = zapcore.Lock(zapcore.AddSync(o.out))
	}

	zapLogger := zap.New(zapcore.NewCore(encoder, sink, atomicLevel))
	return &Logger{
		Logger:      zapr.NewLogger(zapLogger),
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
		closer: closer,
	}, nil
}

// ParseLevel converts a level name or a logr verbosity number to a zap
// level. Verbosity n enables V(n) and below.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return zapcore.Level(-n), nil
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

// Level returns the minimum level.
func (l *Logger) Level() zapcore.Level {
	return l.atomicLevel.Level()
}

// Flush writes buffered entries.
func (l *Logger) Flush() {
	l.flush()
}

// Close flushes the logger and closes the log file, if any.
func (l *Logger) Close() error {
	l.flush()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
