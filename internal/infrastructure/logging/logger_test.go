package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesanet/scale-telemetry/internal/infrastructure/config"
)

func TestNew_StdoutOnly(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}

func TestNew_WritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, err := New(config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: "stderr",
		Dir:    dir,
		File:   "scales.log",
	}, "1.2.3")
	require.NoError(t, err)

	logger.With("component", "test").Info("device connected", "device_id", "scale-01")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "scales.log"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "device connected", entry["msg"])
	assert.Equal(t, "scale-01", entry["device_id"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "scale-telemetry", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
}

func TestNew_DefaultFileName(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(config.LoggingConfig{Dir: dir}, "dev")
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Close())

	_, err = os.Stat(filepath.Join(dir, "scale_telemetry.log"))
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger := Default()
	child := logger.With("component", "router")

	require.NotNil(t, child)
	assert.NotSame(t, logger, child)
	assert.NoError(t, child.Close())
}

func TestNewHandler_DefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{Logger: slog.New(newHandler(&buf, config.LoggingConfig{Format: "json"}, "test"))}
	logger.Info("test message", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "scale-telemetry", entry["service"])
	assert.Equal(t, "test", entry["version"])
}
