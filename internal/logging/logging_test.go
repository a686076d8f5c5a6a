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
)

func TestSetOutputCapturesStructuredLogs(t *testing.T) {
	var structured, human bytes.Buffer
	Init()
	SetOutput(&structured, &human)
	t.Cleanup(Init)

	ForService("trainer").Info("model trained", "auc", 0.91)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &entry))
	assert.Equal(t, "model trained", entry["msg"])
	assert.Equal(t, "trainer", entry["service"])
	assert.InDelta(t, 0.91, entry["auc"], 1e-9)
}

func TestNewFileLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "service.log")

	logger, closeLog, err := NewFileLogger(path, "datastore", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("store opened", "dialect", "sqlite")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "store opened", entry["msg"])
	assert.Equal(t, "datastore", entry["service"])
	assert.Equal(t, "sqlite", entry["dialect"])
}
