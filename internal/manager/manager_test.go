package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/storagebackend"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	stores := storagebackend.TierMap{
		payload.TierRam: storagebackend.NewRam(),
	}
	disk, err := storagebackend.NewDisk(t.TempDir())
	require.NoError(t, err)
	stores[payload.TierDisk] = disk

	return New(lease.NewManager(), stores, memoryrepo.New())
}

func TestAllocateStartsInAllocatedState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 128, payload.TierRam)
	require.NoError(t, err)
	assert.Equal(t, payload.StateAllocated, desc.State)
	assert.Equal(t, payload.TierRam, desc.Tier)
	assert.Equal(t, uint64(1), desc.Version)
}

func TestCommitMakesPayloadActive(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 128, payload.TierRam)
	require.NoError(t, err)

	committed, err := m.Commit(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, payload.StateActive, committed.State)
	assert.Equal(t, uint64(2), committed.Version)
}

func TestCommitTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 128, payload.TierRam)
	require.NoError(t, err)
	_, err = m.Commit(ctx, desc.ID)
	require.NoError(t, err)

	_, err = m.Commit(ctx, desc.ID)
	assert.Equal(t, payload.KindInvalidState, payload.KindOf(err))
}

func TestAcquireReadLeaseRejectsUncommittedPayload(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 128, payload.TierRam)
	require.NoError(t, err)

	_, _, err = m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	assert.Equal(t, payload.KindInvalidState, payload.KindOf(err))
}

func TestAcquireReadLeaseSucceedsOnActivePayload(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 128, payload.TierRam)
	require.NoError(t, err)
	_, err = m.Commit(ctx, desc.ID)
	require.NoError(t, err)

	l, readDesc, err := m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, l.LeaseID)
	assert.Equal(t, payload.StateActive, readDesc.State)
}

func TestDeleteBlockedByActiveLeaseUnlessForced(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 128, payload.TierRam)
	require.NoError(t, err)
	_, err = m.Commit(ctx, desc.ID)
	require.NoError(t, err)

	_, _, err = m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	require.NoError(t, err)

	err = m.Delete(ctx, desc.ID, false)
	assert.Equal(t, payload.KindLeaseConflict, payload.KindOf(err))

	err = m.Delete(ctx, desc.ID, true)
	assert.NoError(t, err)

	_, err = m.ResolveSnapshot(ctx, desc.ID)
	assert.Equal(t, payload.KindNotFound, payload.KindOf(err))
}

func TestPromoteMovesBytesBetweenTiers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	desc, err := m.Allocate(ctx, 4, payload.TierRam)
	require.NoError(t, err)

	ramBackend := m.stores[payload.TierRam]
	require.NoError(t, ramBackend.Write(ctx, desc.ID, []byte("data"), false))

	_, err = m.Commit(ctx, desc.ID)
	require.NoError(t, err)

	promoted, err := m.Promote(ctx, desc.ID, payload.TierDisk)
	require.NoError(t, err)
	assert.Equal(t, payload.TierDisk, promoted.Tier)

	diskBackend := m.stores[payload.TierDisk]
	data, err := diskBackend.Read(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	_, err = ramBackend.Read(ctx, desc.ID)
	assert.Equal(t, payload.KindNotFound, payload.KindOf(err))
}

func TestDeleteOfUnknownPayloadIsNoop(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	assert.NoError(t, m.Delete(ctx, payload.NewID(), false))
}
