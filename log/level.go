package log

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"
)

// A Level is the importance or severity of a log event.
// The levels match [slog.Level], with the addition of [LevelDisabled]
// which is above every level that can be logged.
type Level slog.Level

const (
	LevelDebug    = Level(slog.LevelDebug)
	LevelInfo     = Level(slog.LevelInfo)
	LevelWarn     = Level(slog.LevelWarn)
	LevelError    = Level(slog.LevelError)
	LevelDisabled = Level(1<<31 - 1)
)

// String returns a name for the level. Levels at or above [LevelDisabled]
// are named "DISABLED", all others are named as by [slog.Level.String].
//
//	LevelWarn.String() => "WARN"
func (l Level) String() string {
	if l >= LevelDisabled {
		return "DISABLED"
	}

	return slog.Level(l).String()
}

// MarshalJSON implements [encoding/json.Marshaler]
// by quoting the output of [Level.String].
func (l Level) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, l.String()), nil
}

// UnmarshalJSON implements [encoding/json.Unmarshaler].
// It accepts any string produced by [Level.MarshalJSON], ignoring case,
// as well as "disable" and "false".
func (l *Level) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}

	switch strings.ToLower(s) {
	case "disable", "disabled", "false":
		*l = LevelDisabled
	default:
		return (*slog.Level)(l).UnmarshalJSON(data)
	}

	return nil
}

// AppendText implements [encoding.TextAppender]
// by calling [Level.String].
func (l Level) AppendText(b []byte) ([]byte, error) {
	return append(b, l.String()...), nil
}

// MarshalText implements [encoding.TextMarshaler]
// by calling [Level.AppendText].
func (l Level) MarshalText() ([]byte, error) {
	return l.AppendText(nil)
}

// UnmarshalText implements [encoding.TextUnmarshaler].
// It accepts any string produced by [Level.MarshalText], ignoring case.
func (l *Level) UnmarshalText(data []byte) (err error) {
	switch string(bytes.ToLower(data)) {
	case "disable", "disabled", "false":
		*l = LevelDisabled
	default:
		err = (*slog.Level)(l).UnmarshalText(data)
	}

	return
}

// Level returns the receiver.
func (l Level) Level() slog.Level { return slog.Level(l) }

// LevelFlag implements [github.com/spf13/pflag.Value] so a Level can be
// given on the command line.
type LevelFlag Level

func (lf *LevelFlag) String() string {
	return (Level)(*lf).String()
}

func (lf *LevelFlag) Set(s string) error {
	return (*Level)(lf).UnmarshalText([]byte(s))
}

func (lf *LevelFlag) Type() string {
	return "level"
}
