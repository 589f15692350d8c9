package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 64, cfg.TeeQueueDepth)
	assert.True(t, cfg.AllowAsyncOrderKeys)
	assert.False(t, cfg.StrictMode)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 4\nstrict_mode: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.BatchSize)
	assert.True(t, cfg.StrictMode)
	// Fields absent from the file keep Default()'s values.
	assert.Equal(t, 64, cfg.TeeQueueDepth)
	assert.True(t, cfg.AllowAsyncOrderKeys)
}

func TestLoadMissingFileReturnsDefaultsAndError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}
