package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

func TestInsertAndHasActive(t *testing.T) {
	tbl := NewTable()
	id := payload.NewID()
	l := Lease{LeaseID: "l1", PayloadID: id, ExpiresAt: time.Now().Add(time.Minute)}
	tbl.Insert(l)

	assert.True(t, tbl.HasActive(id))
}

func TestExpiredLeaseNotActive(t *testing.T) {
	tbl := NewTable()
	id := payload.NewID()
	past := time.Now().Add(-time.Minute)
	tbl.Insert(Lease{LeaseID: "l1", PayloadID: id, ExpiresAt: past})

	assert.False(t, tbl.HasActiveAt(id, time.Now()))
}

func TestRemoveReleasesLease(t *testing.T) {
	tbl := NewTable()
	id := payload.NewID()
	tbl.Insert(Lease{LeaseID: "l1", PayloadID: id, ExpiresAt: time.Now().Add(time.Minute)})
	tbl.Remove("l1")

	assert.False(t, tbl.HasActive(id))
	_, ok := tbl.Get("l1")
	assert.False(t, ok)
}

func TestRemoveAllDropsRegardlessOfExpiry(t *testing.T) {
	tbl := NewTable()
	id := payload.NewID()
	tbl.Insert(Lease{LeaseID: "l1", PayloadID: id, ExpiresAt: time.Now().Add(time.Minute)})
	tbl.Insert(Lease{LeaseID: "l2", PayloadID: id, ExpiresAt: time.Now().Add(-time.Minute)})

	tbl.RemoveAll(id)

	assert.False(t, tbl.HasActive(id))
	_, ok := tbl.Get("l1")
	assert.False(t, ok)
	_, ok = tbl.Get("l2")
	assert.False(t, ok)
}

func TestManagerAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager()
	id := payload.NewID()

	l := mgr.Acquire(ctx, id, payload.Location{}, time.Minute)
	require.NotEmpty(t, l.LeaseID)
	assert.True(t, mgr.HasActiveLeases(ctx, id))

	mgr.Release(ctx, l.LeaseID)
	assert.False(t, mgr.HasActiveLeases(ctx, id))
}

func TestManagerLeaseIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager()
	id := payload.NewID()

	a := mgr.Acquire(ctx, id, payload.Location{}, time.Minute)
	b := mgr.Acquire(ctx, id, payload.Location{}, time.Minute)
	assert.NotEqual(t, a.LeaseID, b.LeaseID)
}

func TestManagerInvalidateAll(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager()
	id := payload.NewID()

	mgr.Acquire(ctx, id, payload.Location{}, time.Minute)
	mgr.Acquire(ctx, id, payload.Location{}, time.Minute)
	mgr.InvalidateAll(ctx, id)

	assert.False(t, mgr.HasActiveLeases(ctx, id))
}
