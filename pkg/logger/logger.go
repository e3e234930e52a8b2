// Package logger holds the process-wide zap logger. It starts as a no-op so
// packages can log before configuration is loaded.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

type Options struct {
	Level string
	// Format is "json" (default) or "console".
	Format string
}

// InitWithOptions builds and installs the global logger. An unparseable
// level falls back to info.
func InitWithOptions(opts Options) error {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Replace(l)
	return nil
}

// Replace swaps the global logger. Nil installs a no-op logger.
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

func Logger() *zap.Logger {
	return global.Load()
}

// Sync flushes buffered entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Emails is a field listing addresses with their local parts masked, so mail
// logs identify the domain without recording who was written to.
func Emails(key string, addrs ...string) zap.Field {
	masked := make([]string, len(addrs))
	for i, addr := range addrs {
		masked[i] = MaskEmail(addr)
	}
	return zap.Strings(key, masked)
}

// MaskEmail keeps the first character of the local part and the domain:
// "ada@example.edu" becomes "a***@example.edu".
func MaskEmail(addr string) string {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
