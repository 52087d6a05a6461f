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

	"smartclim/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartclim.log")
	log, closer, err := New(config.Log{Level: "debug", Format: "text", File: path}, "smartclim")
	require.NoError(t, err)

	log.Debug("reading stored", "address", "D0:5F:B8:51:9E:67")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "reading stored")
	assert.Contains(t, string(b), "app=smartclim")
	assert.NotContains(t, string(b), "\x1b[")
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, "json", slog.LevelInfo, true))
	log.Debug("hidden")
	log.Info("published", "topic", "smartclim/abc/state")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "published", rec["msg"])
	assert.Equal(t, "smartclim/abc/state", rec["topic"])
}

func TestNewRejectsLevel(t *testing.T) {
	_, _, err := New(config.Log{Level: "loud"}, "smartclim")
	assert.Error(t, err)
}
