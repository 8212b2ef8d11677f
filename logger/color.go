package logger

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

type color uint8

const (
	red color = iota + 31
	green
	yellow
	blue
	magenta
)

const unknownLevelColor = red

var levelToCapitalColorString = map[zapcore.Level]string{
	zapcore.DebugLevel:  magenta.Wrap(zapcore.DebugLevel.CapitalString()),
	zapcore.InfoLevel:   blue.Wrap(zapcore.InfoLevel.CapitalString()),
	zapcore.WarnLevel:   yellow.Wrap(zapcore.WarnLevel.CapitalString()),
	zapcore.ErrorLevel:  red.Wrap(zapcore.ErrorLevel.CapitalString()),
	zapcore.DPanicLevel: red.Wrap(zapcore.DPanicLevel.CapitalString()),
	zapcore.PanicLevel:  red.Wrap(zapcore.PanicLevel.CapitalString()),
	zapcore.FatalLevel:  red.Wrap(zapcore.FatalLevel.CapitalString()),
}

// Wrap adds ANSI escape codes around s.
func (c color) Wrap(s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", uint8(c), s)
}
