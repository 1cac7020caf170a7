// Package logger holds the process-wide structured logger.
package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	current atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	current.Store(zap.NewNop())
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string
}

// Init replaces the no-op default with a real logger writing to stderr.
func Init(cfg Config) error {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	current.Store(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

// Set installs l as the global logger. Tests use it with zaptest or observer cores.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the global logger.
func L() *zap.Logger {
	return current.Load()
}

// Sync flushes any buffered log entries
func Sync() error {
	return L().Sync()
}

// With returns a logger with additional context fields
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// ForFormat returns a logger tagged with a format adapter name.
func ForFormat(name string) *zap.Logger {
	return L().With(zap.String("format", name))
}

// IsDebug returns true if the logger is configured for debug level
func IsDebug() bool {
	return level.Level() <= zapcore.DebugLevel
}
