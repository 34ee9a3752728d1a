// Package logger wraps charmbracelet/log with Grant's log levels and a
// process-wide default instance.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	charm "github.com/charmbracelet/log"
)

// GrantLogger is a thin wrapper around charmbracelet/log that adds the Trace
// level and level parsing from configuration strings.
type GrantLogger struct {
	*charm.Logger
}

// TraceLevel sits below charm's DebugLevel.
const TraceLevel = charm.DebugLevel - 1

// NewGrantLogger wraps an existing charm logger.
func NewGrantLogger(l *charm.Logger) *GrantLogger {
	return &GrantLogger{Logger: l}
}

// Trace logs at trace level with optional key-value pairs.
func (l *GrantLogger) Trace(msg any, keyvals ...any) {
	l.Logger.Log(TraceLevel, msg, keyvals...)
}

// ParseLevel converts a configuration string into a charm log level.
// Supported values: Trace, Debug, Info, Warning, Off (case-insensitive).
func ParseLevel(level string) (charm.Level, error) {
	switch strings.ToLower(level) {
	case "":
		return charm.InfoLevel, nil
	case "trace":
		return TraceLevel, nil
	case "debug":
		return charm.DebugLevel, nil
	case "info":
		return charm.InfoLevel, nil
	case "warning", "warn":
		return charm.WarnLevel, nil
	case "off":
		return charm.FatalLevel + 1, nil
	default:
		return charm.InfoLevel, fmt.Errorf("invalid log level '%s'. Supported log levels are Trace, Debug, Info, Warning, Off", level)
	}
}

// Output resolves a configured log file into a writer. Empty and /dev/stderr
// mean stderr; /dev/stdout means stdout; anything else is opened for append.
func Output(file string) (io.Writer, error) {
	switch file {
	case "", "/dev/stderr":
		return os.Stderr, nil
	case "/dev/stdout":
		return os.Stdout, nil
	case "/dev/null":
		return io.Discard, nil
	default:
		return os.OpenFile(file, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	}
}
