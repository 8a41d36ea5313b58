// Package logger is the component-tagged logger used across deskclaw.
//
// Output always goes to stderr by default: MCP stdio servers own stdout.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is a log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	mu     sync.RWMutex
	level  = INFO
	out    io.Writer = os.Stderr
	asJSON bool
	base   = build()
)

func build() zerolog.Logger {
	w := out
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(level.zerolog()).With().Timestamp().Str("app", "deskclaw").Logger()
}

// SetLevel changes the minimum level that is written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	base = build()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetOutput redirects log output. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
	base = build()
}

// SetJSON switches between console formatting and raw JSON lines.
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = enabled
	base = build()
}

func event(l Level) *zerolog.Event {
	mu.RLock()
	lg := base
	mu.RUnlock()
	switch l {
	case DEBUG:
		return lg.Debug()
	case WARN:
		return lg.Warn()
	case ERROR:
		return lg.Error()
	default:
		return lg.Info()
	}
}

func write(l Level, component, msg string, fields map[string]any) {
	ev := event(l)
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

func Debug(msg string) { write(DEBUG, "", msg, nil) }
func Info(msg string)  { write(INFO, "", msg, nil) }
func Warn(msg string)  { write(WARN, "", msg, nil) }
func Error(msg string) { write(ERROR, "", msg, nil) }

func DebugC(component, msg string) { write(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { write(INFO, component, msg, nil) }
func WarnC(component, msg string)  { write(WARN, component, msg, nil) }
func ErrorC(component, msg string) { write(ERROR, component, msg, nil) }

// DebugCF logs at debug level with a component tag and structured fields.
func DebugCF(component, msg string, fields map[string]any) { write(DEBUG, component, msg, fields) }

// InfoCF logs at info level with a component tag and structured fields.
func InfoCF(component, msg string, fields map[string]any) { write(INFO, component, msg, fields) }

// WarnCF logs at warn level with a component tag and structured fields.
func WarnCF(component, msg string, fields map[string]any) { write(WARN, component, msg, fields) }

// ErrorCF logs at error level with a component tag and structured fields.
func ErrorCF(component, msg string, fields map[string]any) { write(ERROR, component, msg, fields) }
