package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modelweb/internal/env"
)

func TestNew_Production(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithConsole(&buf))

	log.Info("Conversion started", "source", "model.onnx")
	log.Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Conversion started", record["msg"])
	assert.Equal(t, "model.onnx", record["source"])
}

func TestNew_Development(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Development, WithConsole(&buf), WithLevel(slog.LevelDebug))

	log.Debug("Shard written", "file", "group1-shard1of1.bin")
	assert.Contains(t, buf.String(), "Shard written")
	assert.Contains(t, buf.String(), "group1-shard1of1.bin")
}

func TestNew_LogToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "modelweb.log")
	log := New(env.Development, WithConsole(&buf), WithLogToFile(true), WithLogFile(path))

	log.With("run_id", "abc").Warn("Removed stale bundle file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "abc", record["run_id"])
	assert.Contains(t, buf.String(), "Removed stale bundle file")
}
