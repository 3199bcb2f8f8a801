// Package logging builds modloader.Logger implementations on top of log/slog
// and go.uber.org/zap.
//
// Both constructors accept the same level names: "debug", "info", "warn" and
// "error". Unknown levels fall back to "info".
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GoCodeAlone/modloader"
)

// Backend names accepted by New.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// Options selects and configures a logging backend.
type Options struct {
	Backend string
	Level   string
	Format  string
	Output  io.Writer
}

// New returns a logger for the configured backend. An empty backend selects slog.
func New(opts Options) (modloader.Logger, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendSlog:
		return NewSlog(opts.Level, opts.Format, opts.Output), nil
	case BackendZap:
		return NewZap(opts.Level, strings.EqualFold(opts.Format, "console"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// NewSlog returns a slog logger writing text or json records to w.
// A nil writer means stderr.
func NewSlog(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseSlogLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ZapLogger adapts a zap SugaredLogger to modloader.Logger. Arguments are
// treated as alternating key/value pairs, the same convention slog uses.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap builds a production zap logger, or a development one with
// console encoding when development is true.
func NewZap(level string, development bool) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseZapLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize zap logger: %w", err)
	}
	return WrapZap(logger), nil
}

// WrapZap adapts an existing zap logger.
func WrapZap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

func parseZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

var (
	_ modloader.Logger = (*ZapLogger)(nil)
	_ modloader.Logger = (*slog.Logger)(nil)
)
