package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("source not found", slog.String("type", "Player"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "source not found", entry["msg"])
	assert.Equal(t, "Player", entry["type"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(DefaultConfig(), &buf)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("pass complete", slog.Int("nodes", 3))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "nodes=3")
}

func TestInvalidFormat(t *testing.T) {
	_, err := NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
