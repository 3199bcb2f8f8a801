package modloader

// Logger defines the interface for registry logging.
// The registry uses structured logging with key-value pairs so that
// module definition, construction and initialization can be traced
// regardless of which logging backend the host application uses.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// The logging package provides adapters for log/slog and zap.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	//
	// Example:
	//   logger.Info("Module loaded", "module", "upload", "duration", d)
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for conditions like a duplicate definition that overwrote an earlier one.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	//
	// Example:
	//   logger.Debug("Dependency resolved", "from", "upload", "to", "state")
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
