package logger

import (
	"io"
	"os"
	"sync/atomic"

	"rwa-market-indexer/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timeFormat = "[01-02|15:04:05.000]"
	loggerName = "rwa-indexer"
)

var (
	sugar atomic.Pointer[zap.SugaredLogger]

	// level is shared by every core so SetLevel applies to the console and
	// the file at once and survives a logger rebuild.
	level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

func init() {
	sugar.Store(build(DefaultLoggerConfig()))

	config.GlobalConfigCallback.AddCallback(func(cfg config.GlobalConfig) {
		loggerCfg := cfg.LoggerConfig()
		if err := SetLevel(loggerCfg.Level); err != nil {
			sugar.Load().Warnf("%s, keeping %s", err, level.Level())
		}
		sugar.Store(build(loggerCfg))
	})
}

// SetLevel changes the minimum level of the running logger.
func SetLevel(name string) error {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return errors.Wrapf(err, "log level %q", name)
	}
	level.SetLevel(l)

	return nil
}

func Level() zapcore.Level {
	return level.Level()
}

func build(cfg config.LoggerConfig) *zap.SugaredLogger {
	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, consoleCore())
	}
	if cfg.File != "" {
		cores = append(cores, fileCore(cfg))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddStacktrace(zap.ErrorLevel),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	).Named(loggerName).Sugar()
}

func SyncFileLogger() {
	if err := sugar.Load().Sync(); err != nil {
		sugar.Load().Infof("Failed to sync logger: %v", err)
	}
}

func fileCore(cfg config.LoggerConfig) zapcore.Core {
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = config.DefaultLogFileSizeMiB
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename: cfg.File,
		MaxSize:  maxSize,
	})

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)

	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), w, level)
}

// stdout is never synced; Sync on a terminal fails on some platforms.
type stdout struct {
	io.Writer
}

func (stdout) Sync() error {
	return nil
}

func consoleCore() zapcore.Core {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeLevel = consoleColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)

	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), stdout{os.Stdout}, level)
}

func consoleColorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	s, ok := levelToCapitalColorString[l]
	if !ok {
		s = unknownLevelColor.Wrap(l.CapitalString())
	}

	enc.AppendString(s)
}

// DefaultLoggerConfig is used until the configuration is loaded.
func DefaultLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:   "DEBUG",
		Console: true,
	}
}

func Warn(msg string, args ...interface{}) {
	sugar.Load().Warnf(msg, args...)
}

func Error(msg string, args ...interface{}) {
	sugar.Load().Errorf(msg, args...)
}

func Info(msg string, args ...interface{}) {
	sugar.Load().Infof(msg, args...)
}

func Debug(msg string, args ...interface{}) {
	sugar.Load().Debugf(msg, args...)
}

func Fatal(msg string, args ...interface{}) {
	SyncFileLogger()
	sugar.Load().Fatalf(msg, args...)
}
