// Package logger writes structured log entries as JSON lines.
//
// An entry carries a UTC timestamp, the level name, the message, any fields
// and, for errors, the error text:
//
//	{"timestamp":"2025-07-17T10:22:33Z","level":"INFO","message":"Backup written","fields":{"category":"philosophy_content"}}
//
// Package-level functions log through a default logger that writes INFO and
// above to stdout; the CLI replaces it once the configured level is known.
package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity. Higher levels are more severe.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int8(l))
	}
	return levelNames[l]
}

// ParseLevel accepts level names in any case, plus "warning".
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		name = "WARN"
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// Fields are structured key/value pairs attached to an entry
type Fields map[string]interface{}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
	Error     string `json:"error,omitempty"`
}

// sink is shared by a logger and everything derived from it with With
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger writes entries at or above its minimum level
type Logger struct {
	min  Level
	base Fields
	sink *sink
	now  func() time.Time
}

// New creates a logger writing to out
func New(min Level, out io.Writer) *Logger {
	return &Logger{
		min:  min,
		sink: &sink{out: out},
		now:  time.Now,
	}
}

// With returns a logger that adds fields to every entry. Per-call fields win
// on key conflicts.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{min: l.min, base: merged, sink: l.sink, now: l.now}
}

// Enabled reports whether entries at level are written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.min
}

func (l *Logger) write(level Level, message string, fields Fields, err error) {
	if !l.Enabled(level) {
		return
	}

	e := entry{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    l.merge(fields),
	}
	if err != nil {
		e.Error = err.Error()
	}

	var buf bytes.Buffer
	if encErr := json.NewEncoder(&buf).Encode(e); encErr != nil {
		buf.Reset()
		fmt.Fprintf(&buf, "%s %s %s (unencodable fields: %v)\n", e.Timestamp, e.Level, e.Message, encErr)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out.Write(buf.Bytes()) // nolint:errcheck
}

func (l *Logger) merge(fields Fields) Fields {
	if len(l.base) == 0 {
		return fields
	}
	if len(fields) == 0 {
		return l.base
	}
	merged := make(Fields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (l *Logger) Debug(message string, fields Fields) { l.write(LevelDebug, message, fields, nil) }
func (l *Logger) Info(message string, fields Fields)  { l.write(LevelInfo, message, fields, nil) }
func (l *Logger) Warn(message string, fields Fields)  { l.write(LevelWarn, message, fields, nil) }

// Error logs at ERROR level; err may be nil.
func (l *Logger) Error(message string, fields Fields, err error) {
	l.write(LevelError, message, fields, err)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(LevelInfo, os.Stdout)
)

// SetDefault replaces the logger used by the package-level functions
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the logger used by the package-level functions
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func Debug(message string, fields Fields) { Default().Debug(message, fields) }
func Info(message string, fields Fields)  { Default().Info(message, fields) }
func Warn(message string, fields Fields)  { Default().Warn(message, fields) }

func Error(message string, fields Fields, err error) {
	Default().Error(message, fields, err)
}
