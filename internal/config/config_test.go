package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Intake.SizeThresholdBytes)
	assert.Equal(t, 120, cfg.Assistant.HardTimeoutSeconds)
	assert.Equal(t, 4, cfg.Assistant.ErrorGateSeconds)
}

func TestLoadConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")

	original := DefaultConfig()
	original.Server.Port = 9999
	original.Intake.MaxPreviewRows = 10
	original.Assistant.BaseURL = "http://assistant.internal/api"
	require.NoError(t, original.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, 10, loaded.Intake.MaxPreviewRows)
	assert.Equal(t, "http://assistant.internal/api", loaded.Assistant.BaseURL)
}

func TestLoadConfig_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), cfg.GetDataDir())
	assert.Equal(t, filepath.Join(dir, "data", "cache"), cfg.GetCacheDir())
	assert.True(t, filepath.IsAbs(cfg.Assistant.PresetsFile))
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATA_DIR", "/srv/fairlens")
	t.Setenv("ASSISTANT_BASE_URL", "http://10.0.0.5:8000/api")

	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "config.xml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/srv/fairlens", cfg.GetDataDir())
	assert.Equal(t, "http://10.0.0.5:8000/api", cfg.Assistant.BaseURL)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "config.xml"))
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureDirectories())

	info, err := os.Stat(cfg.GetCacheDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}