package storagebackend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

func TestBuildAlwaysIncludesRamAndDisk(t *testing.T) {
	dir := t.TempDir()
	stores, err := Build(context.Background(), Config{DiskRoot: dir})
	require.NoError(t, err)

	_, err = stores.Get(payload.TierRam)
	assert.NoError(t, err)
	_, err = stores.Get(payload.TierDisk)
	assert.NoError(t, err)
}

func TestBuildOmitsGpuAndObjectWhenUnconfigured(t *testing.T) {
	dir := t.TempDir()
	stores, err := Build(context.Background(), Config{DiskRoot: dir})
	require.NoError(t, err)

	_, err = stores.Get(payload.TierGpu)
	assert.Equal(t, payload.KindUnsupported, payload.KindOf(err))
	_, err = stores.Get(payload.TierObject)
	assert.Equal(t, payload.KindUnsupported, payload.KindOf(err))
}

func TestBuildDefaultsDiskRoot(t *testing.T) {
	stores, err := Build(context.Background(), Config{})
	require.NoError(t, err)
	_, err = stores.Get(payload.TierDisk)
	assert.NoError(t, err)
}
