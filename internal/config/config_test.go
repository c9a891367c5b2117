package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Spill.Workers)
	assert.Equal(t, 100*time.Millisecond, cfg.Tiering.Interval)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id: node-a
storage:
  ram:
    capacity_bytes: 2048
spill:
  workers: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, uint64(2048), cfg.Storage.Ram.CapacityBytes)
	assert.Equal(t, 8, cfg.Spill.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: from-file\n"), 0o644))

	t.Setenv("PAYLOADMGR_NODE_ID", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.NodeID)
}

func TestWatchFileDeliversUpdatedConfigOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spill:\n  workers: 4\n"), 0o644))

	cfg, watcher, err := WatchFile(path)
	require.NoError(t, err)
	require.NotNil(t, watcher)
	assert.Equal(t, 4, cfg.Spill.Workers)

	require.NoError(t, os.WriteFile(path, []byte("spill:\n  workers: 16\n"), 0o644))

	select {
	case next := <-watcher.C:
		assert.Equal(t, 16, next.Spill.Workers)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update delivered after file write")
	}
}

func TestWatchFileWithEmptyPathUsesDefaultsAndNilWatcher(t *testing.T) {
	cfg, watcher, err := WatchFile("")
	require.NoError(t, err)
	assert.Nil(t, watcher)
	assert.Equal(t, "payloadmgr-0", cfg.NodeID)
}
