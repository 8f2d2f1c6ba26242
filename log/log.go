// Package log provides the structured logger shared by every sensorlink package.
// It is a thin layer over [log/slog] with a process-wide default logger whose
// level and handler are set once from the configuration.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

type (
	Attr    = slog.Attr
	Handler = slog.Handler
)

var DiscardHandler = slog.DiscardHandler

// Logger is the printf-style interface expected by the MQTT client package.
type Logger interface {
	Println(v ...any)
	Printf(format string, v ...any)
}

var (
	level         slog.LevelVar
	handlerOpts   = &slog.HandlerOptions{Level: &level}
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
	with          []any
)

// With adds the given attributes to every subsequent log record.
func With(args ...any) {
	defaultLogger = defaultLogger.With(args...)
	with = append(with, args...)
}

// SetLogLevel sets the minimum level of the default logger.
func SetLogLevel(l Level) {
	level.Set(slog.Level(l))
}

// LogLevel returns the minimum level of the default logger.
func LogLevel() Level {
	return Level(level.Level())
}

// Enabled reports whether records at l are logged.
func Enabled(l Level) bool {
	return l >= LogLevel() && l < LevelDisabled
}

// SetOutput replaces the default logger with a text logger writing to w.
func SetOutput(w io.Writer) {
	SetTextHandler(w)
}

// SetTextHandler sets the default logger to log text records to w.
func SetTextHandler(w io.Writer) {
	SetHandler(slog.NewTextHandler(w, handlerOpts))
}

// SetJSONHandler sets the default logger to log JSON records to w.
func SetJSONHandler(w io.Writer) {
	SetHandler(slog.NewJSONHandler(w, handlerOpts))
}

// Error logs msg at [LevelError]. If err is not nil it is added as the
// "cause" attribute.
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{"cause", err}, args...)
	}
	defaultLogger.Error(msg, args...)
}

// Fatal logs at [LevelError] and exits the process.
func Fatal(msg string, err error, args ...any) {
	Error(msg, err, args...)
	os.Exit(1)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// WarnError logs msg at [LevelWarn] with err as the "cause" attribute.
func WarnError(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{"cause", err}, args...)
	}
	defaultLogger.Warn(msg, args...)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

type warnLogger struct{}

// WarnLogger returns a [Logger] that logs at [LevelWarn].
func WarnLogger() Logger {
	return warnLogger{}
}

func (warnLogger) Println(v ...any)               { Warn(trimNewline(fmt.Sprintln(v...))) }
func (warnLogger) Printf(format string, v ...any) { Warn(fmt.Sprintf(format, v...)) }

type errorLogger struct{}

// ErrorLogger returns a [Logger] that logs at [LevelError].
func ErrorLogger() Logger {
	return errorLogger{}
}

func (errorLogger) Println(v ...any)               { defaultLogger.Error(trimNewline(fmt.Sprintln(v...))) }
func (errorLogger) Printf(format string, v ...any) { defaultLogger.Error(fmt.Sprintf(format, v...)) }

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}
