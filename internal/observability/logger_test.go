// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "codeshield",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))

		GetLogger().Named("orchestrator").Info("scan dispatched")

		out := buf.String()
		assert.Contains(t, out, palette["green"]+"INFO"+ansiReset)
		assert.Contains(t, out, "codeshield.orchestrator.")
		assert.Contains(t, out, "scan dispatched")
	})

	t.Run("json format emits structured fields", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "api"}, zapcore.AddSync(&buf))
		GetLogger().Warn("rate limited", zap.String("client", "127.0.0.1"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "api", entry["logger"])
		assert.Equal(t, "rate limited", entry["msg"])
		assert.Equal(t, "127.0.0.1", entry["client"])
	})

	t.Run("level below threshold is dropped", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
		GetLogger().Info("quiet")
		assert.Empty(t, buf.String())
	})

	t.Run("log file receives json entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		path := filepath.Join(t.TempDir(), "codeshield.log")
		var console bytes.Buffer
		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: path,
			MaxSize: 1,
		}, zapcore.AddSync(&console))

		GetLogger().Error("engine unreachable")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"engine unreachable"`)
		assert.Contains(t, console.String(), "engine unreachable")
	})

	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, zapcore.AddSync(&buf))
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "second"}, zapcore.AddSync(&buf))

		assert.Same(t, first, GetLogger())
		GetLogger().Info("hello")
		assert.Contains(t, buf.String(), "first")
		assert.NotContains(t, buf.String(), "second")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load(), "fallback must not be installed globally")
}

func TestNewLogger_IsIndependent(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "http"}, &buf)
	logger.Info("request served", zap.Int("status", 200))

	assert.Contains(t, buf.String(), `"status":200`)
	assert.Nil(t, globalLogger.Load())
}

func TestLevelColor(t *testing.T) {
	colors := config.ColorConfig{Debug: "cyan", Error: "red", Warn: "no-such-color"}
	assert.Equal(t, palette["cyan"], levelColor(colors, zapcore.DebugLevel))
	assert.Equal(t, palette["red"], levelColor(colors, zapcore.ErrorLevel))
	assert.Empty(t, levelColor(colors, zapcore.WarnLevel))
	assert.Empty(t, levelColor(colors, zapcore.InfoLevel))
}
