// Package logger provides structured logging for EdgeSQL
package logger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/edgesql/pkg/errors"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

// contextKey is the type for context keys
type contextKey string

const (
	// ImportIDKey is the context key for the import run id
	ImportIDKey contextKey = "import_id"
	// TableKey is the context key for the target table
	TableKey contextKey = "table"
	// SourceKey is the context key for the source description
	SourceKey contextKey = "source"
)

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// Init initializes the global logger. Calling it again replaces the logger,
// so the CLI can apply --log-level after flags are parsed.
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	globalLogger = l
	mu.Unlock()
	return nil
}

// Set installs an existing logger as the global one. Used by tests.
func Set(l *zap.Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

func newLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "console"
	}

	// stdout belongs to query output
	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Get returns the global logger
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	l, err := newLogger(Config{Level: "info", Encoding: "console"})
	if err != nil {
		l, _ = zap.NewProduction()
	}
	mu.Lock()
	if globalLogger == nil {
		globalLogger = l
	}
	l = globalLogger
	mu.Unlock()
	return l
}

// WithImport returns a context carrying the import id, target table and
// source description.
func WithImport(ctx context.Context, importID, table, source string) context.Context {
	ctx = context.WithValue(ctx, ImportIDKey, importID)
	ctx = context.WithValue(ctx, TableKey, table)
	return context.WithValue(ctx, SourceKey, source)
}

// FromContext tags base with the import fields stored in ctx. A nil base
// uses the global logger.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = Get()
	}
	var fields []zap.Field
	if id, ok := ctx.Value(ImportIDKey).(string); ok {
		fields = append(fields, zap.String("import_id", id))
	}
	if table, ok := ctx.Value(TableKey).(string); ok {
		fields = append(fields, zap.String("table", table))
	}
	if source, ok := ctx.Value(SourceKey).(string); ok {
		fields = append(fields, zap.String("source", source))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ErrorFields renders err for logging. Structured errors add their type
// and every detail along the wrap chain; outer details win.
func ErrorFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.Error(err)}
	if t := errors.GetType(err); t != "" {
		fields = append(fields, zap.String("error_type", string(t)))
	}

	details := map[string]interface{}{}
	var origin []errors.StackFrame
	for cur := err; cur != nil; {
		var se *errors.Error
		if !errors.As(cur, &se) {
			break
		}
		for k, v := range se.Details {
			if _, seen := details[k]; !seen {
				details[k] = v
			}
		}
		origin = se.Stack
		cur = se.Cause
	}
	if len(origin) > 0 {
		fields = append(fields, zap.String("origin",
			fmt.Sprintf("%s:%d", filepath.Base(origin[0].File), origin[0].Line)))
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, details[k]))
	}
	return fields
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
