package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a config string onto a LogLevel. Unknown values fall back to info.
func ParseLevel(s string) LogLevel {
	lvl := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if lvl == "warning" {
		return LevelWarn
	}
	if _, ok := levelRank[lvl]; ok {
		return lvl
	}
	return LevelInfo
}

// Logger writes one JSON object per line. It is safe for concurrent use and
// its level can be changed while running.
type Logger struct {
	core *loggerCore
	base map[string]interface{}
}

type loggerCore struct {
	mu      sync.Mutex
	output  io.Writer
	level   LogLevel
	service string
}

// LoggerOption is a function that configures a Logger
type LoggerOption func(*loggerCore)

// WithOutput sets the output writer for the logger
func WithOutput(w io.Writer) LoggerOption {
	return func(l *loggerCore) {
		l.output = w
	}
}

// WithLevel sets the minimum log level
func WithLevel(level LogLevel) LoggerOption {
	return func(l *loggerCore) {
		l.level = level
	}
}

// WithService sets the service name for logs
func WithService(service string) LoggerOption {
	return func(l *loggerCore) {
		l.service = service
	}
}

// NewLogger creates a new Logger with the specified options
func NewLogger(opts ...LoggerOption) *Logger {
	core := &loggerCore{
		output:  os.Stdout,
		level:   LevelInfo,
		service: "vrceventbot",
	}
	for _, opt := range opts {
		opt(core)
	}
	return &Logger{core: core}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewLogger(WithOutput(io.Discard), WithLevel(LevelError))
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level LogLevel) {
	l.core.mu.Lock()
	l.core.level = level
	l.core.mu.Unlock()
}

// Level returns the current minimum level.
func (l *Logger) Level() LogLevel {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

// With returns a child logger that adds the given key/value pairs to every entry.
// The child shares output and level with its parent.
func (l *Logger) With(fields ...interface{}) *Logger {
	_, extra := parseFields(fields)
	merged := make(map[string]interface{}, len(l.base)+len(extra))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return &Logger{core: l.core, base: merged}
}

type logEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Service       string                 `json:"service"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) emit(level LogLevel, message, correlationID string, fields map[string]interface{}) {
	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if levelRank[level] < levelRank[c.level] {
		return
	}

	if len(l.base) > 0 {
		if fields == nil {
			fields = make(map[string]interface{}, len(l.base))
		}
		for k, v := range l.base {
			if _, set := fields[k]; !set {
				fields[k] = v
			}
		}
	}
	if len(fields) == 0 {
		fields = nil
	}

	data, err := json.Marshal(logEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Service:       c.service,
		Message:       message,
		CorrelationID: correlationID,
		Fields:        fields,
	})
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}
	fmt.Fprintln(c.output, string(data))
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	cid, m := parseFields(fields)
	l.emit(LevelDebug, message, cid, m)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...interface{}) {
	cid, m := parseFields(fields)
	l.emit(LevelInfo, message, cid, m)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	cid, m := parseFields(fields)
	l.emit(LevelWarn, message, cid, m)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	cid, m := parseFields(fields)
	l.emit(LevelError, message, cid, m)
}

func (l *Logger) DebugWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, m := parseFields(fields)
	l.emit(LevelDebug, message, GetCorrelationID(ctx), m)
}

func (l *Logger) InfoWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, m := parseFields(fields)
	l.emit(LevelInfo, message, GetCorrelationID(ctx), m)
}

func (l *Logger) WarnWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, m := parseFields(fields)
	l.emit(LevelWarn, message, GetCorrelationID(ctx), m)
}

func (l *Logger) ErrorWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, m := parseFields(fields)
	l.emit(LevelError, message, GetCorrelationID(ctx), m)
}

// Audit writes an audit event as an info entry tagged audit=true.
func (l *Logger) Audit(ctx context.Context, event *AuditEvent) {
	fields := map[string]interface{}{
		"audit":      true,
		"audit_id":   event.ID,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.Resource != "" {
		fields["resource"] = event.Resource
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Details {
		fields[k] = v
	}
	l.emit(LevelInfo, event.Action, GetCorrelationID(ctx), fields)
}

// parseFields turns key1, value1, key2, value2 pairs into a map. A
// "correlation_id" key is pulled out separately. Errors are stringified.
func parseFields(fields []interface{}) (string, map[string]interface{}) {
	correlationID := ""
	fieldMap := make(map[string]interface{}, len(fields)/2)

	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if key == "correlation_id" {
			if id, ok := value.(string); ok {
				correlationID = id
			}
			continue
		}
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fieldMap[key] = value
	}

	return correlationID, fieldMap
}
