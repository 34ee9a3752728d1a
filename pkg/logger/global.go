package logger

import (
	"os"
	"sync/atomic"

	charm "github.com/charmbracelet/log"
)

// defaultLogger is the global default GrantLogger instance stored atomically.
var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(NewGrantLogger(charm.Default()))
}

// Default returns the global default GrantLogger instance.
func Default() *GrantLogger {
	return defaultLogger.Load().(*GrantLogger)
}

// SetDefault sets a new global default GrantLogger instance.
func SetDefault(logger *GrantLogger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

// New creates a new GrantLogger writing to stderr with default settings.
func New() *GrantLogger {
	return NewGrantLogger(charm.New(os.Stderr))
}

// Trace logs at trace level using the default logger.
func Trace(msg any, keyvals ...any) { Default().Trace(msg, keyvals...) }

// Debug logs at debug level using the default logger.
func Debug(msg any, keyvals ...any) { Default().Debug(msg, keyvals...) }

// Info logs at info level using the default logger.
func Info(msg any, keyvals ...any) { Default().Info(msg, keyvals...) }

// Warn logs at warn level using the default logger.
func Warn(msg any, keyvals ...any) { Default().Warn(msg, keyvals...) }

// Error logs at error level using the default logger.
func Error(msg any, keyvals ...any) { Default().Error(msg, keyvals...) }
