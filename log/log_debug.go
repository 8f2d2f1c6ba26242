//go:build debug

package log

import (
	"fmt"
	"log/slog"
)

func init() {
	SetLogLevel(LevelDebug)
	defaultLogger.Warn("DEBUG")
}

// Debug logs at [LevelDebug]
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// SetHandler sets the default logger's handler to the one given.
func SetHandler(h Handler) {
	defaultLogger = slog.New(h).With(with...)
}

type debugLogger struct{}

// DebugLogger returns a [Logger] that logs at [LevelDebug]
func DebugLogger() Logger {
	return debugLogger{}
}

func (debugLogger) Println(v ...any) {
	Debug(trimNewline(fmt.Sprintln(v...)))
}

func (debugLogger) Printf(format string, v ...any) {
	Debug(fmt.Sprintf(format, v...))
}
