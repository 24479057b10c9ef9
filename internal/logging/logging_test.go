package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "json", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("vault unlocked", zap.Int("secrets", 3))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "vault unlocked", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 3, entry["secrets"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "console", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("restore point is old")
	assert.Contains(t, buf.String(), "restore point is old")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewInvalid(t *testing.T) {
	_, err := New("loud", "console", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
