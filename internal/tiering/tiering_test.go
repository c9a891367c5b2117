package tiering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/spill"
)

func insertActive(t *testing.T, ctx context.Context, repo repository.Repository, tier payload.Tier, accessedAt time.Time, pinned bool) payload.ID {
	t.Helper()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	id := payload.NewID()
	err = repo.InsertPayload(ctx, tx, payload.Record{Descriptor: payload.Descriptor{
		ID:             id,
		Tier:           tier,
		State:          payload.StateActive,
		LastAccessedAt: accessedAt,
		Pinned:         pinned,
	}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	return id
}

func TestPressureStateThresholds(t *testing.T) {
	ps := NewPressureState(100, 0, 0)
	assert.False(t, ps.RamPressure())
	ps.AddRam(150)
	assert.True(t, ps.RamPressure())
	ps.AddRam(-100)
	assert.False(t, ps.RamPressure())
}

func TestPressureStateNeverUnderflowsOnOverDecrement(t *testing.T) {
	ps := NewPressureState(0, 0, 0)
	ps.AddRam(10)
	ps.AddRam(-100)
	assert.Equal(t, uint64(0), ps.RamBytes())
}

func TestLRUPolicyPrefersOldestAccess(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepo.New()
	leases := lease.NewManager()

	older := insertActive(t, ctx, repo, payload.TierRam, time.Now().Add(-time.Hour), false)
	insertActive(t, ctx, repo, payload.TierRam, time.Now(), false)

	policy := NewLRUPolicy(repo, leases)
	state := NewPressureState(0, 0, 0)
	state.RamLimit = 1 // force pressure
	state.AddRam(2)

	victim, ok := policy.ChooseRamEviction(ctx, state)
	require.True(t, ok)
	assert.Equal(t, older, victim)
}

func TestLRUPolicySkipsPinnedAndLeased(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepo.New()
	leases := lease.NewManager()

	pinned := insertActive(t, ctx, repo, payload.TierRam, time.Now().Add(-time.Hour), true)
	leased := insertActive(t, ctx, repo, payload.TierRam, time.Now().Add(-time.Minute*30), false)
	leases.Acquire(ctx, leased, payload.Location{}, time.Hour)
	evictable := insertActive(t, ctx, repo, payload.TierRam, time.Now(), false)

	_ = pinned

	policy := NewLRUPolicy(repo, leases)
	state := NewPressureState(1, 0, 0)
	state.AddRam(10)

	victim, ok := policy.ChooseRamEviction(ctx, state)
	require.True(t, ok)
	assert.Equal(t, evictable, victim)
}

func TestLRUPolicyReturnsFalseWithoutPressure(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepo.New()
	policy := NewLRUPolicy(repo, lease.NewManager())
	state := NewPressureState(0, 0, 0)

	_, ok := policy.ChooseRamEviction(ctx, state)
	assert.False(t, ok)
}

func TestControllerSchedulesSpillOnPressure(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepo.New()
	leases := lease.NewManager()
	id := insertActive(t, ctx, repo, payload.TierRam, time.Now(), false)

	policy := NewLRUPolicy(repo, leases)
	state := NewPressureState(1, 0, 0)
	state.AddRam(10)

	sched := spill.NewScheduler(4)
	ctrl := NewController(policy, sched, state, 10*time.Millisecond)
	ctrl.Start()
	defer ctrl.Stop()

	select {
	case task := <-sched.Tasks():
		assert.Equal(t, id, task.ID)
		assert.Equal(t, payload.TierDisk, task.TargetTier)
	case <-time.After(2 * time.Second):
		t.Fatal("no spill task scheduled")
	}
}
