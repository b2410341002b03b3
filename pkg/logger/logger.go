package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Option struct {
	Level    string // debug / info / warn / error
	Format   string // "console" or "json"
	File     string // empty writes to stdout only
	Compress bool
}

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init builds the process logger. Until it is called every helper is a no-op,
// which keeps package tests quiet.
func Init(opt Option) error {
	level := zapcore.InfoLevel
	if opt.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opt.Level))); err != nil {
			return err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opt.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opt.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   opt.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	current.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// L returns the structured logger.
func L() *zap.Logger {
	return current.Load().WithOptions(zap.AddCallerSkip(-1))
}

func Debugf(template string, args ...any) { current.Load().Sugar().Debugf(template, args...) }
func Infof(template string, args ...any)  { current.Load().Sugar().Infof(template, args...) }
func Warnf(template string, args ...any)  { current.Load().Sugar().Warnf(template, args...) }
func Errorf(template string, args ...any) { current.Load().Sugar().Errorf(template, args...) }

func Info(msg string, fields ...zap.Field)  { current.Load().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current.Load().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current.Load().Error(msg, fields...) }

func Sync() {
	_ = current.Load().Sync()
}
