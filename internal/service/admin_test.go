package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/storagebackend"
)

func TestAdminStatsTalliesPerTierCountAndBytes(t *testing.T) {
	ctx := context.Background()
	stores := storagebackend.TierMap{payload.TierRam: storagebackend.NewRam()}
	disk, err := storagebackend.NewDisk(t.TempDir())
	require.NoError(t, err)
	stores[payload.TierDisk] = disk

	repo := memoryrepo.New()
	mgr := manager.New(lease.NewManager(), stores, repo)
	c := NewCatalog(mgr)
	a := NewAdmin(repo)

	_, err = c.Allocate(ctx, 100, payload.TierRam, 0, false, "")
	require.NoError(t, err)
	_, err = c.Allocate(ctx, 200, payload.TierRam, 0, false, "")
	require.NoError(t, err)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.PayloadsRam)
	assert.Equal(t, uint64(300), stats.BytesRam)
	assert.Equal(t, uint64(0), stats.PayloadsDisk)
}
