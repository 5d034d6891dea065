package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProcessConfigIsValid(t *testing.T) {
	assert.NoError(t, Validate(DefaultProcessConfig()))
}

func TestValidateRejectsUnknownStoreDriver(t *testing.T) {
	cfg := DefaultProcessConfig()
	cfg.Store.Driver = "postgres"
	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresDSNForSQLite(t *testing.T) {
	cfg := DefaultProcessConfig()
	cfg.Store.Driver = "sqlite"
	assert.Error(t, Validate(cfg))

	cfg.Store.DSN = "./run.db"
	assert.NoError(t, Validate(cfg))
}

func TestLoadFromPathMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte("store:\n  driver: sqlite\n  dsn: ./data/run.db\nlog:\n  level: debug\nengine:\n  max_concurrent_runs: 4\n  resume_timeout: 45s\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "./data/run.db", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 45_000_000_000, int(cfg.Engine.ResumeTimeout))
}

func TestLoadFromPathMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultProcessConfig().Store.Driver, cfg.Store.Driver)
}
