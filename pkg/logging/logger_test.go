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

	"bt-dns-manager/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     *config.LoggingConfig
		name    string
		wantErr bool
	}{
		{
			name: "text format stdout",
			cfg:  &config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		},
		{
			name: "json format stderr",
			cfg:  &config.LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		},
		{
			name:    "file in missing directory",
			cfg:     &config.LoggingConfig{Level: "info", Format: "text", Output: "file", FilePath: "/nonexistent/dir/app.log"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(&config.LoggingConfig{Level: "info", Format: "text", Output: "file", FilePath: path})
	require.NoError(t, err)

	logger.Info("dns updated", "record", "home.example.com")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "record=home.example.com")
}

func TestJSONOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("suppressed")
	logger.WithComponent("reconcile").Warn("leak detected", "vpn", "203.0.113.7")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "leak detected", entry["msg"])
	assert.Equal(t, "reconcile", entry["component"])
	assert.Equal(t, "203.0.113.7", entry["vpn"])
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &config.LoggingConfig{Level: "info", Format: "text"})

	logger.WithField("device", "vpn").Info("report received")
	assert.Contains(t, buf.String(), "device=vpn")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestDiscardAndDefault(t *testing.T) {
	assert.NotNil(t, Discard())
	assert.NotNil(t, NewDefault())
	assert.NoError(t, Discard().Close())
}
