package logger

import (
	"os"
	"path/filepath"
	"testing"

	"rwa-market-indexer/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFileLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "indexer.log")

	config.GlobalConfigCallback.Call(config.Config{
		Logger: config.LoggerConfig{Level: "INFO", File: logFile, MaxFileSize: 1},
	})
	t.Cleanup(func() {
		config.GlobalConfigCallback.Call(config.Config{Logger: DefaultLoggerConfig()})
	})

	Debug("hidden %d", 1)
	Info("indexed blocks %d to %d", 10, 20)
	Cron().Error(errors.New("boom"), "job failed", "task", "indexer")
	SyncFileLogger()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(content), "indexed blocks 10 to 20")
	require.Contains(t, string(content), "job failed")
	require.NotContains(t, string(content), "hidden")
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() {
		config.GlobalConfigCallback.Call(config.Config{Logger: DefaultLoggerConfig()})
	})

	require.NoError(t, SetLevel("warn"))
	require.Equal(t, zapcore.WarnLevel, Level())

	require.Error(t, SetLevel("LOUD"))
	require.Equal(t, zapcore.WarnLevel, Level())

	// an invalid level in a reloaded config keeps the running one
	config.GlobalConfigCallback.Call(config.Config{Logger: config.LoggerConfig{Level: "LOUD", Console: true}})
	require.Equal(t, zapcore.WarnLevel, Level())

	config.GlobalConfigCallback.Call(config.Config{Logger: config.LoggerConfig{Level: "ERROR", Console: true}})
	require.Equal(t, zapcore.ErrorLevel, Level())
}
