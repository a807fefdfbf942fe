package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements the ports.Logger interface on top of zap's sugared
// logger. It is the production backend; StdLogger remains available for
// tests and small command-line tools.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a zap-backed logger at the given level. Development
// mode switches to the human-readable console encoder.
func NewZapLogger(level LogLevel, development bool) (*ZapLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

// Sync flushes any buffered log entries. Call on shutdown.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func flatten(fields []map[string]interface{}) []interface{} {
	if len(fields) == 0 || fields[0] == nil {
		return nil
	}
	kv := make([]interface{}, 0, len(fields[0])*2)
	for k, v := range fields[0] {
		kv = append(kv, k, v)
	}
	return kv
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Debugw(msg, flatten(fields)...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Infow(msg, flatten(fields)...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Warnw(msg, flatten(fields)...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	kv := flatten(fields)
	if err != nil {
		kv = append(kv, "error", err)
	}
	l.sugar.Errorw(msg, kv...)
}
