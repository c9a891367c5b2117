package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

func TestResolveSnapshotReportsExpiredStateLazily(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	require.NoError(t, m.SetExpiry(ctx, desc.ID, time.Now().Add(-time.Minute)))

	snap, err := m.ResolveSnapshot(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, payload.StateExpired, snap.State)
}

func TestResolveSnapshotIgnoresFutureExpiry(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	require.NoError(t, m.SetExpiry(ctx, desc.ID, time.Now().Add(time.Hour)))

	snap, err := m.ResolveSnapshot(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, payload.StateActive, snap.State)
}

func TestSetRequireDurabilityPersists(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	require.NoError(t, m.SetRequireDurability(ctx, desc.ID, true))

	snap, err := m.ResolveSnapshot(ctx, desc.ID)
	require.NoError(t, err)
	assert.True(t, snap.RequireDurability)
}

func TestSetAttributeStoresOpaqueHint(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	require.NoError(t, m.SetAttribute(ctx, desc.ID, "eviction_policy", "lfu"))

	snap, err := m.ResolveSnapshot(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, "lfu", snap.Attributes["eviction_policy"])
}

func TestAcquireReadLeaseRejectsExpiredPayload(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	require.NoError(t, m.SetExpiry(ctx, desc.ID, time.Now().Add(-time.Second)))

	_, _, err := m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	assert.Equal(t, payload.KindInvalidState, payload.KindOf(err))
}
