package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "viewer.log")

	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Info("session opened", zap.String("stream", "cam-1"))
	logger.Debug("not written at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `"stream":"cam-1"`), out)
	assert.False(t, strings.Contains(out, "not written"), out)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "console"})
	assert.Error(t, err)
}

func TestNew_ConsoleDefault(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}
