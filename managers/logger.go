package managers

import (
	"context"

	"github.com/GoCodeAlone/modloader"
)

// Logger is the logging module shared by the managers. It tags every record
// with the component that wrote it.
type Logger struct {
	base modloader.Logger
}

// NewLogger wraps base. A nil base discards everything.
func NewLogger(base modloader.Logger) *Logger {
	if base == nil {
		base = modloader.NopLogger()
	}
	return &Logger{base: base}
}

// For returns a modloader.Logger that adds component=name to each record.
func (l *Logger) For(name string) modloader.Logger {
	return componentLogger{base: l.base, component: name}
}

func (l *Logger) Init(ctx context.Context) error {
	l.base.Debug("Logger module ready")
	return nil
}

type componentLogger struct {
	base      modloader.Logger
	component string
}

func (c componentLogger) with(args []any) []any {
	return append([]any{"component", c.component}, args...)
}

func (c componentLogger) Info(msg string, args ...any)  { c.base.Info(msg, c.with(args)...) }
func (c componentLogger) Error(msg string, args ...any) { c.base.Error(msg, c.with(args)...) }
func (c componentLogger) Warn(msg string, args ...any)  { c.base.Warn(msg, c.with(args)...) }
func (c componentLogger) Debug(msg string, args ...any) { c.base.Debug(msg, c.with(args)...) }

// LoggerRegistration defines the logger module around base.
func LoggerRegistration(base modloader.Logger) modloader.Registration {
	return modloader.Registration{
		Name: LoggerName,
		Factory: modloader.Provide(func(ctx context.Context) (*Logger, error) {
			return NewLogger(base), nil
		}),
	}
}
