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
	assert.Equal(t, CurrentFormatVersion, cfg.FormatVersion)
	assert.Greater(t, cfg.BatchSize, 0)
	assert.Greater(t, cfg.SampleSize, 0)
	assert.NoError(t, cfg.validate())
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.BatchSize = 500
	cfg.KeepFull = 3

	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.FormatVersion, loaded.FormatVersion)
	assert.Equal(t, 500, loaded.BatchSize)
	assert.Equal(t, 3, loaded.KeepFull)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadOrDefaultFallsBackWhenMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidBatchSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"format_version":1,"batch_size":0,"sample_size":10}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	require.NoError(t, Write(path, Default()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file after a successful write")
}

func TestDiscoverFindsExistingWorkspace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, WorkspaceDir), 0o755))

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, ok, err := Discover(nested)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, root, found)
}

func TestDiscoverReportsNotFound(t *testing.T) {
	root := t.TempDir()
	start := filepath.Join(root, "x", "y")
	require.NoError(t, os.MkdirAll(start, 0o755))

	found, ok, err := Discover(start)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, start, found)
}

func TestEnsureWorkspaceCreatesConfigAndDiffsDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureWorkspace(root))

	assert.DirExists(t, filepath.Join(root, WorkspaceDir, DiffsDir))
	assert.FileExists(t, ConfigPath(root))

	loaded, err := Load(ConfigPath(root))
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}

func TestEnsureWorkspaceIsIdempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureWorkspace(root))

	cfg, err := Load(ConfigPath(root))
	require.NoError(t, err)
	cfg.BatchSize = 42
	require.NoError(t, Write(ConfigPath(root), cfg))

	require.NoError(t, EnsureWorkspace(root))

	loaded, err := Load(ConfigPath(root))
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.BatchSize, "EnsureWorkspace must not overwrite an existing config")
}
