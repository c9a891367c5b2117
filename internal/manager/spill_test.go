package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

func allocateAndCommit(t *testing.T, ctx context.Context, m *Manager, size uint64) *payload.Descriptor {
	t.Helper()
	desc, err := m.Allocate(ctx, size, payload.TierRam)
	require.NoError(t, err)
	ramBackend := m.stores[payload.TierRam]
	require.NoError(t, ramBackend.Write(ctx, desc.ID, make([]byte, size), false))
	committed, err := m.Commit(ctx, desc.ID)
	require.NoError(t, err)
	return committed
}

func TestExecuteSpillWithoutWaitFailsFastOnActiveLease(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	_, _, err := m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	require.NoError(t, err)

	_, err = m.ExecuteSpill(ctx, desc.ID, payload.TierDisk, false, false)
	assert.Equal(t, payload.KindLeaseConflict, payload.KindOf(err))
}

func TestExecuteSpillWithWaitProceedsOnceLeaseReleased(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	desc := allocateAndCommit(t, ctx, m, 4)

	l, _, err := m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		m.ReleaseLease(ctx, l.LeaseID)
		close(done)
	}()

	spilled, err := m.ExecuteSpill(ctx, desc.ID, payload.TierDisk, false, true)
	require.NoError(t, err)
	assert.Equal(t, payload.TierDisk, spilled.Tier)
	<-done
}

func TestExecuteSpillWithWaitRespectsContextCancellation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	desc := allocateAndCommit(t, ctx, m, 4)

	_, _, err := m.AcquireReadLease(ctx, desc.ID, payload.TierRam, time.Minute)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	_, err = m.ExecuteSpill(shortCtx, desc.ID, payload.TierDisk, false, true)
	assert.Equal(t, payload.KindLeaseConflict, payload.KindOf(err))
}

func TestSpillReturnsIndependentPerIDResults(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	ok := allocateAndCommit(t, ctx, m, 4)
	leased := allocateAndCommit(t, ctx, m, 4)
	_, _, err := m.AcquireReadLease(ctx, leased.ID, payload.TierRam, time.Minute)
	require.NoError(t, err)

	results := m.Spill(ctx, []payload.ID{ok.ID, leased.ID}, payload.TierDisk, false, false)
	require.Len(t, results, 2)

	assert.Equal(t, ok.ID, results[0].ID)
	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Descriptor)
	assert.Equal(t, payload.TierDisk, results[0].Descriptor.Tier)

	assert.Equal(t, leased.ID, results[1].ID)
	assert.Equal(t, payload.KindLeaseConflict, payload.KindOf(results[1].Err))
}
