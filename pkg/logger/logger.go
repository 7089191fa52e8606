package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level       string // debug, info, warn, error
	Development bool
	FilePath    string // empty disables the rotating file sink
	MaxSizeMB   int
	MaxBackups  int
}

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

func init() {
	Init(Options{Level: "info"})
}

// Init replaces the package logger. Safe to call more than once.
func Init(opts Options) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if opts.Development {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    max(opts.MaxSizeMB, 1),
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	old := sugar
	sugar = l.Sugar()
	mu.Unlock()
	_ = old.Sync()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Info(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Error(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	get().Debugf(format, v...)
}

func Warn(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

// With returns a structured logger carrying the given key/value pairs.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return get().With(keysAndValues...)
}

func Sync() error {
	return get().Sync()
}

// LogTransactionError records a failed side effect of a transaction transition.
func LogTransactionError(transactionID, action string, err error) {
	get().Warnw("transaction side effect failed", "action", action, "transaction_id", transactionID, "error", err)
}
