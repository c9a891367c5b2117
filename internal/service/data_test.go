package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/storagebackend"
)

func newTestDataAndCatalog(t *testing.T) (*Data, *Catalog, storagebackend.TierMap) {
	t.Helper()
	stores := storagebackend.TierMap{payload.TierRam: storagebackend.NewRam()}
	disk, err := storagebackend.NewDisk(t.TempDir())
	require.NoError(t, err)
	stores[payload.TierDisk] = disk

	mgr := manager.New(lease.NewManager(), stores, memoryrepo.New())
	return NewData(mgr), NewCatalog(mgr), stores
}

func TestDataResolveSnapshot(t *testing.T) {
	ctx := context.Background()
	d, c, _ := newTestDataAndCatalog(t)

	desc, err := c.Allocate(ctx, 4, payload.TierRam, 0, false, "")
	require.NoError(t, err)

	snap, err := d.ResolveSnapshot(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, desc.ID, snap.ID)
}

func TestDataAcquireAndReleaseReadLease(t *testing.T) {
	ctx := context.Background()
	d, c, stores := newTestDataAndCatalog(t)

	desc, err := c.Allocate(ctx, 4, payload.TierRam, 0, false, "")
	require.NoError(t, err)
	require.NoError(t, stores[payload.TierRam].Write(ctx, desc.ID, []byte("data"), false))
	_, err = c.Commit(ctx, desc.ID)
	require.NoError(t, err)

	grant, err := d.AcquireReadLease(ctx, desc.ID, payload.TierRam, "lru", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.LeaseID)
	assert.True(t, grant.ExpiresAt.After(time.Now()))

	d.ReleaseLease(ctx, grant.LeaseID)
}

func TestDataReleaseUnknownLeaseIsNotAnError(t *testing.T) {
	d, _, _ := newTestDataAndCatalog(t)
	d.ReleaseLease(context.Background(), lease.ID("unknown"))
}
