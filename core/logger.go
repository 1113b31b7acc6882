package core

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging surface the dispatcher and its worker
// loops write through. Implementations can back it with anything; the
// default wraps zap.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogConfig controls DefaultLogger's construction: console or JSON
// encoding, and optional rotation of a file output via lumberjack.
type LogConfig struct {
	Level       string // debug, info, warn, error (default info)
	Format      string // json or console (default console)
	Development bool

	// OutputPath is a file path to log to, in addition to stderr. Empty
	// means stderr only.
	OutputPath string
	Rotation   RotationConfig
}

// RotationConfig mirrors lumberjack.Logger's knobs for OutputPath.
type RotationConfig struct {
	Enable     bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultLogger implements Logger on top of a zap.SugaredLogger.
type DefaultLogger struct {
	sugar *zap.SugaredLogger
}

// NewDefaultLogger builds a DefaultLogger from cfg, logging to stderr and
// optionally to a rotated file.
func NewDefaultLogger(cfg LogConfig) *DefaultLogger {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)}
	if cfg.OutputPath != "" {
		var ws zapcore.WriteSyncer
		if cfg.Rotation.Enable {
			ws = zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.OutputPath,
				MaxSize:    atLeast(cfg.Rotation.MaxSizeMB, 10),
				MaxBackups: atLeast(cfg.Rotation.MaxBackups, 1),
				MaxAge:     atLeast(cfg.Rotation.MaxAgeDays, 7),
				Compress:   cfg.Rotation.Compress,
			})
		} else if f, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			ws = zapcore.AddSync(f)
		}
		if ws != nil {
			cores = append(cores, zapcore.NewCore(encoder, ws, level))
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return &DefaultLogger{sugar: logger.Sugar()}
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.sugar.Debugw(msg, fieldsToArgs(fields)...) }
func (l *DefaultLogger) Info(msg string, fields ...Field)  { l.sugar.Infow(msg, fieldsToArgs(fields)...) }
func (l *DefaultLogger) Warn(msg string, fields ...Field)  { l.sugar.Warnw(msg, fieldsToArgs(fields)...) }
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.sugar.Errorw(msg, fieldsToArgs(fields)...) }

func fieldsToArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

// Sync flushes any buffered log entries; callers should defer it.
func (l *DefaultLogger) Sync() error { return l.sugar.Sync() }

// NoOpLogger discards everything. Used as the dispatcher's default so a
// caller must opt into logging.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
