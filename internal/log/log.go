// Package log provides the structured logger used across every task in the
// gateway agent. It wraps zap the way drand's common/log package does: a
// small sugared-logger facade so call sites never import zap directly.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every task logs through.
type Logger interface {
	Info(keyvals ...interface{})
	Debug(keyvals ...interface{})
	Warn(keyvals ...interface{})
	Error(keyvals ...interface{})
	Fatal(keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Debugw(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	With(args ...interface{}) Logger
	Named(s string) Logger
}

const (
	DebugLevel = int(zapcore.DebugLevel)
	InfoLevel  = int(zapcore.InfoLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
)

// DefaultLevel is used by DefaultLogger before any call to Configure.
var DefaultLevel = InfoLevel

type logger struct {
	*zap.SugaredLogger
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{l.SugaredLogger.With(args...)}
}

func (l *logger) Named(s string) Logger {
	return &logger{l.SugaredLogger.Named(s)}
}

var (
	defaultLogger Logger
	defaultOnce   sync.Once
)

// New builds a Logger writing to out at the given level, JSON-encoded if
// json is true, console-encoded otherwise.
func New(out zapcore.WriteSyncer, level int, json bool) Logger {
	if out == nil {
		out = zapcore.AddSync(os.Stderr)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, out, zapcore.Level(level))
	return &logger{zap.New(core, zap.WithCaller(true)).Sugar()}
}

// Configure replaces the process-wide default logger. Call once at startup.
func Configure(level int, json bool) {
	defaultLogger = New(nil, level, json)
}

// DefaultLogger returns the process-wide logger, building a stderr default
// the first time it's needed if Configure was never called.
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(nil, DefaultLevel, false)
		}
	})
	return defaultLogger
}

type ctxKey struct{}

// ToContext attaches l to ctx.
func ToContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger on ctx, or the default logger if none was
// attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return DefaultLogger()
}
