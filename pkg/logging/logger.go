// Package logging provides structured logging for the petmig migration stages.
// It wraps zerolog to provide a consistent logging interface with support for
// JSON output, human-readable console output and a rotating log file.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey type for context values to avoid collisions.
type ContextKey string

// Context keys for run information.
const (
	RunIDKey    ContextKey = "run_id"
	TenantIDKey ContextKey = "tenant_id"
)

// Level represents logging severity levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// FileConfig enables a rotating JSON log file next to the console output.
type FileConfig struct {
	// Path of the log file, e.g. logs/migracao_prontuarios.log.
	Path string
	// MaxSizeMB before rotation (default 50).
	MaxSizeMB int
	// MaxBackups kept after rotation (default 5).
	MaxBackups int
	// Compress rotated files.
	Compress bool
}

// Config holds logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level Level

	// ServiceName is included in all log entries.
	ServiceName string

	// Environment is included in all log entries (e.g., "homologacao", "producao").
	Environment string

	// JSONFormat enables JSON output when true, human-readable when false.
	JSONFormat bool

	// Output sets the writer for logs (defaults to os.Stderr).
	Output io.Writer

	// File adds a rotating log file when non-nil and Path is set.
	File *FileConfig

	// Sinks receive a copy of every entry, e.g. to collect warnings for the run report.
	Sinks []Sink
}

// DefaultConfig returns a Config with sensible defaults for interactive runs.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: "petmig",
		Environment: "development",
		JSONFormat:  false,
		Output:      os.Stderr,
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	// Debug logs a debug message with optional fields.
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields.
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger with the given fields attached to all subsequent logs.
	With(fields ...Field) Logger

	// WithContext returns a new Logger that carries run information from the context.
	WithContext(ctx context.Context) Logger

	// Zerolog returns the underlying zerolog.Logger.
	Zerolog() zerolog.Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field with the given key and value.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates a Field for an error.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// logger implements the Logger interface using zerolog.
type logger struct {
	zl          zerolog.Logger
	serviceName string
	bound       []Field
	sinks       []Sink
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// The file always gets JSON so it can be grepped and shipped.
	if cfg.File != nil && cfg.File.Path != "" {
		output = zerolog.MultiLevelWriter(output, NewFileWriter(*cfg.File))
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()

	return &logger{
		zl:          zl,
		serviceName: cfg.ServiceName,
		sinks:       cfg.Sinks,
	}
}

// NewFileWriter returns a size-rotated writer for cfg.Path.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

// Zerolog returns the underlying zerolog.Logger.
func (l *logger) Zerolog() zerolog.Logger {
	return l.zl
}

// ParseLevel converts a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

// parseLevel converts Level to zerolog.Level.
func parseLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message.
func (l *logger) Debug(msg string, fields ...Field) {
	addFields(l.zl.Debug(), fields).Msg(msg)
	l.sendToSinks(LevelDebug, msg, fields)
}

// Info logs an info message.
func (l *logger) Info(msg string, fields ...Field) {
	addFields(l.zl.Info(), fields).Msg(msg)
	l.sendToSinks(LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *logger) Warn(msg string, fields ...Field) {
	addFields(l.zl.Warn(), fields).Msg(msg)
	l.sendToSinks(LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *logger) Error(msg string, fields ...Field) {
	addFields(l.zl.Error(), fields).Msg(msg)
	l.sendToSinks(LevelError, msg, fields)
}

// With returns a new logger with additional fields. A key that is already
// bound keeps its first value.
func (l *logger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	for _, f := range fields {
		if l.hasField(f.Key) {
			continue
		}
		ctx = addFieldToContext(ctx, f)
		bound = append(bound, f)
	}
	return &logger{
		zl:          ctx.Logger(),
		serviceName: l.serviceName,
		bound:       bound,
		sinks:       l.sinks,
	}
}

// WithRun returns a copy of ctx carrying the run id and tenant that
// WithContext attaches to log entries.
func WithRun(ctx context.Context, runID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithContext returns a logger carrying run_id, tenant_id and the active
// trace id found in ctx.
func (l *logger) WithContext(ctx context.Context) Logger {
	var fields []Field
	for _, key := range []ContextKey{RunIDKey, TenantIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" && !l.hasField(string(key)) {
			fields = append(fields, F(string(key), v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() && !l.hasField("trace_id") {
		fields = append(fields, F("trace_id", sc.TraceID().String()))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func (l *logger) hasField(key string) bool {
	for _, f := range l.bound {
		if f.Key == key {
			return true
		}
	}
	return false
}

// addFields adds multiple fields to a zerolog event.
func addFields(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			event = event.Str(f.Key, v)
		case int:
			event = event.Int(f.Key, v)
		case int64:
			event = event.Int64(f.Key, v)
		case float64:
			event = event.Float64(f.Key, v)
		case bool:
			event = event.Bool(f.Key, v)
		case error:
			event = event.Err(v)
		case time.Duration:
			event = event.Dur(f.Key, v)
		case time.Time:
			event = event.Time(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	return event
}

// addFieldToContext adds a field to a zerolog context.
func addFieldToContext(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case float64:
		return ctx.Float64(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	case error:
		return ctx.Err(v)
	case time.Duration:
		return ctx.Dur(f.Key, v)
	case time.Time:
		return ctx.Time(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

// sendToSinks hands the entry to every sink whose threshold it meets.
func (l *logger) sendToSinks(level Level, msg string, fields []Field) {
	if len(l.sinks) == 0 || parseLevel(level) < zerolog.GlobalLevel() {
		return
	}

	fieldMap := make(map[string]string, len(l.bound)+len(fields))
	for _, f := range l.bound {
		fieldMap[f.Key] = fmt.Sprint(f.Value)
	}
	for _, f := range fields {
		fieldMap[f.Key] = fmt.Sprint(f.Value)
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Service:   l.serviceName,
		Message:   msg,
		Fields:    fieldMap,
		Caller:    getCaller(3), // sendToSinks, Debug/Info/Warn/Error, caller
	}

	for _, sink := range l.sinks {
		sink.Write(entry)
	}
}

// nopLogger is a logger that discards all output.
type nopLogger struct{}

func (n *nopLogger) Debug(msg string, fields ...Field)      {}
func (n *nopLogger) Info(msg string, fields ...Field)       {}
func (n *nopLogger) Warn(msg string, fields ...Field)       {}
func (n *nopLogger) Error(msg string, fields ...Field)      {}
func (n *nopLogger) With(fields ...Field) Logger            { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger { return n }
func (n *nopLogger) Zerolog() zerolog.Logger                { return zerolog.Nop() }

// NewNopLogger returns a logger that discards all output.
// Useful for testing when you don't want log noise.
func NewNopLogger() Logger {
	return &nopLogger{}
}
