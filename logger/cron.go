package logger

import (
	"github.com/robfig/cron/v3"
)

type cronLogger struct{}

// Cron returns a cron.Logger writing through the package logger.
func Cron() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	sugar.Load().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	sugar.Load().Errorw(msg, append(keysAndValues, "error", err)...)
}
