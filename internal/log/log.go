// Package log is the structured logger used by the signet binaries and the
// long-running components (gRPC server, sealer).
//
// Libraries accept a Logger and default to NewNopLogger, so nothing is written
// unless a caller wires a real one.
package log

import (
	"fmt"
	"io"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-kit/log/term"
)

// Logger is a leveled key/value logger.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)

	// With returns a logger that prepends keyvals to every entry.
	With(keyvals ...any) Logger
}

// Output formats.
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
	FormatTerm   = "term"
)

type kitLogger struct {
	l kitlog.Logger
}

var _ Logger = kitLogger{}

// New returns a logger writing to w in format, dropping entries below lvl.
// Empty format and level default to logfmt and info.
func New(w io.Writer, format, lvl string) (Logger, error) {
	allow, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}
	sw := kitlog.NewSyncWriter(w)

	var base kitlog.Logger
	switch strings.ToLower(format) {
	case "", FormatLogfmt:
		base = kitlog.NewLogfmtLogger(sw)
	case FormatJSON:
		base = kitlog.NewJSONLogger(sw)
	case FormatTerm:
		base = term.NewColorLogger(sw, kitlog.NewLogfmtLogger, levelColor)
	default:
		return nil, fmt.Errorf("log: unknown format %q", format)
	}
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	return kitLogger{l: level.NewFilter(base, allow)}, nil
}

// ParseLevel maps "debug", "info", "error" and "none" to a filter option.
func ParseLevel(lvl string) (level.Option, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "error":
		return level.AllowError(), nil
	case "none":
		return level.AllowNone(), nil
	default:
		return nil, fmt.Errorf("log: unknown level %q", lvl)
	}
}

// ValidFormat reports whether New accepts format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", FormatLogfmt, FormatJSON, FormatTerm:
		return true
	}
	return false
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return kitLogger{l: kitlog.NewNopLogger()}
}

func (k kitLogger) Debug(msg string, keyvals ...any) {
	_ = level.Debug(k.l).Log(prepend(msg, keyvals)...)
}

func (k kitLogger) Info(msg string, keyvals ...any) {
	_ = level.Info(k.l).Log(prepend(msg, keyvals)...)
}

func (k kitLogger) Error(msg string, keyvals ...any) {
	_ = level.Error(k.l).Log(prepend(msg, keyvals)...)
}

func (k kitLogger) With(keyvals ...any) Logger {
	return kitLogger{l: kitlog.With(k.l, keyvals...)}
}

func prepend(msg string, keyvals []any) []any {
	out := make([]any, 0, len(keyvals)+2)
	out = append(out, "msg", msg)
	return append(out, keyvals...)
}

func levelColor(keyvals ...any) term.FgBgColor {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if keyvals[i] != level.Key() {
			continue
		}
		switch keyvals[i+1] {
		case level.ErrorValue():
			return term.FgBgColor{Fg: term.Red}
		case level.DebugValue():
			return term.FgBgColor{Fg: term.Gray}
		}
	}
	return term.FgBgColor{}
}
