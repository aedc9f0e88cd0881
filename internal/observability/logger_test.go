// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/villagebot/internal/config"
)

// initToBuffer resets the global logger and points its console sink at a buffer.
func initToBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "villagebot",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Named("executor").Info("build submitted")
		Sync()

		out := buf.String()
		assert.Contains(t, out, palette["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "villagebot.executor.")
		assert.Contains(t, out, "build submitted")
	})

	t.Run("json logger emits structured fields", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})

		GetLogger().Warn("village refreshed", zap.String("village_id", "123"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "village refreshed", entry["msg"])
		assert.Equal(t, "123", entry["village_id"])
	})

	t.Run("level filtering", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("dropped")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "loud", Format: "json"})
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes rotated log file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "bot.log")
		initToBuffer(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1})

		GetLogger().Error("rally point unreachable")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "rally point unreachable")
		assert.Contains(t, string(content), `"level":"ERROR"`)
	})

	t.Run("only the first initialization wins", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("test")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger())
}

func TestMaskAccount(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"caesar@example.com", "c***r@example.com"},
		{"ab@example.com", "**@example.com"},
		{"@example.com", "@example.com"},
		{"chieftain", "c***n"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskAccount(tt.in), tt.in)
	}
}

func TestForAccount(t *testing.T) {
	t.Run("plain by default", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json"})

		ForAccount(GetLogger(), "caesar@example.com").Info("farm list sent")
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "caesar@example.com", entry["account"])
	})

	t.Run("masked when configured", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json", MaskAccounts: true})

		ForAccount(GetLogger(), "caesar@example.com").Info("farm list sent")
		Sync()

		assert.Contains(t, buf.String(), `"account":"c***r@example.com"`)
		assert.NotContains(t, buf.String(), "caesar")
	})
}

func TestForSession(t *testing.T) {
	buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json"})

	ForSession(GetLogger().Named("auth"), "0b7f", "ts1.example.com").Info("logged in")
	Sync()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "0b7f", entry["session_id"])
	assert.Equal(t, "ts1.example.com", entry["server"])
}

func TestIgnorableSyncError(t *testing.T) {
	assert.True(t, ignorableSyncError(errors.New("sync /dev/stdout: invalid argument")))
	assert.False(t, ignorableSyncError(errors.New("disk full")))
}
