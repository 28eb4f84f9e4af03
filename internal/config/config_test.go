package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.EngineBaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTL)
	assert.Equal(t, 10*time.Minute, cfg.YoungThreshold)
	assert.Equal(t, 30*time.Second, cfg.RefreshMaxAge)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
	assert.Contains(t, cfg.CacheDir, filepath.Join(".vsession", "sessions"))
	assert.Contains(t, cfg.SyncDir, filepath.Join(".vsession", "sync"))
}

func TestLoadReadsConfigFileOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".vsession")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	content := `
[engine]
base_url = "https://valuation.example.com"

[sessions]
ttl = "12h"
young_threshold = "5m"

[breaker]
failure_threshold = 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "https://valuation.example.com", cfg.EngineBaseURL)
	assert.Equal(t, 12*time.Hour, cfg.SnapshotTTL)
	assert.Equal(t, 5*time.Minute, cfg.YoungThreshold)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)
}

func TestLoadRejectsMalformedConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".vsession")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0o600))

	_, err := Load(viper.New())
	assert.Error(t, err)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := DefaultPath()
	require.NoError(t, err)
	require.NoError(t, WriteDefault(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.EngineBaseURL)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTL)

	// A second init must not clobber user edits.
	assert.Error(t, WriteDefault(path))
}
