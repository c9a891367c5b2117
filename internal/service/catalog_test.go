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

func newTestCatalog(t *testing.T) (*Catalog, storagebackend.TierMap) {
	t.Helper()
	stores := storagebackend.TierMap{payload.TierRam: storagebackend.NewRam()}
	disk, err := storagebackend.NewDisk(t.TempDir())
	require.NoError(t, err)
	stores[payload.TierDisk] = disk

	mgr := manager.New(lease.NewManager(), stores, memoryrepo.New())
	return NewCatalog(mgr), stores
}

func TestCatalogAllocateAppliesTTLPersistAndPolicy(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	desc, err := c.Allocate(ctx, 128, payload.TierRam, 1000, true, "lfu")
	require.NoError(t, err)
	assert.True(t, desc.RequireDurability)
	assert.Equal(t, "lfu", desc.Attributes["eviction_policy"])
	assert.WithinDuration(t, desc.CreatedAt.Add(time.Second), desc.ExpiresAt, time.Millisecond)
}

func TestCatalogAllocateWithoutHintsLeavesDefaults(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	desc, err := c.Allocate(ctx, 128, payload.TierRam, 0, false, "")
	require.NoError(t, err)
	assert.False(t, desc.RequireDurability)
	assert.Empty(t, desc.Attributes["eviction_policy"])
	assert.True(t, desc.ExpiresAt.IsZero())
}

func TestCatalogAddLineageAndGetLineage(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	parent := payload.NewID()
	child := payload.NewID()
	require.NoError(t, c.AddLineage(ctx, child, []LineageParentRef{{Parent: parent, Operation: "derive"}}))

	edges, err := c.GetLineage(ctx, child, true, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, parent, edges[0].ParentID)
}

func TestCatalogSpillTagsPolicyOnSuccessOnly(t *testing.T) {
	ctx := context.Background()
	c, stores := newTestCatalog(t)

	desc, err := c.Allocate(ctx, 4, payload.TierRam, 0, false, "")
	require.NoError(t, err)
	ramBackend := stores[payload.TierRam]
	require.NoError(t, ramBackend.Write(ctx, desc.ID, []byte("data"), false))
	_, err = c.Commit(ctx, desc.ID)
	require.NoError(t, err)

	results := c.Spill(ctx, []payload.ID{desc.ID}, payload.TierDisk, "lru", false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	snap, err := c.mgr.ResolveSnapshot(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, "lru", snap.Attributes["eviction_policy"])
}

func TestCatalogDeleteAndCommitPassThrough(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	desc, err := c.Allocate(ctx, 4, payload.TierRam, 0, false, "")
	require.NoError(t, err)
	committed, err := c.Commit(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, payload.StateActive, committed.State)

	require.NoError(t, c.Delete(ctx, desc.ID, false))
}

