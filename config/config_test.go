package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terrasync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"grid_width: 32\nbatch_delay_ms: 100\nremote_base_url: https://store.example\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.GridWidth)
	assert.Equal(t, 16, cfg.GridHeight, "unset keys keep defaults")
	assert.Equal(t, 100*time.Millisecond, cfg.BatchDelay())
	assert.Equal(t, "https://store.example", cfg.RemoteBaseURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terrasync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cell_scale: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
