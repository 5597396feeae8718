package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsRenamesKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWithOptions("rbtd", "test", Options{Level: "debug", Output: &buf})
	logger.Debug("tone uploaded", "sequence", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "tone uploaded", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "rbtd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "rbtd.log")
	var buf bytes.Buffer
	logger := SetupWithOptions("rbtd", "", Options{Output: &buf, File: &FileOptions{Path: path, MaxSizeMB: 1}})
	logger.Info("hello")
	logger.Debug("filtered")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "hello")
	require.NotContains(t, string(raw), "filtered")
	require.Equal(t, buf.String(), string(raw))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
