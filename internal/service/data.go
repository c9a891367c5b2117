package service

import (
	"context"
	"time"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/payload"
)

// Data is the read/lease surface: resolving a payload's current
// placement and minting or releasing the leases that pin it in place.
type Data struct {
	mgr *manager.Manager
}

// NewData wraps mgr as a Data surface.
func NewData(mgr *manager.Manager) *Data { return &Data{mgr: mgr} }

// ResolveSnapshot returns an advisory view of a payload's current state.
func (d *Data) ResolveSnapshot(ctx context.Context, id payload.ID) (*payload.Descriptor, error) {
	return d.mgr.ResolveSnapshot(ctx, id)
}

// LeaseGrant is the response shape AcquireReadLease returns on the wire:
// the stabilized descriptor plus the lease identity and deadline.
type LeaseGrant struct {
	Descriptor *payload.Descriptor
	LeaseID    lease.ID
	ExpiresAt  time.Time
}

// AcquireReadLease promotes id to minTier if needed, then mints a lease
// guaranteeing its placement is stable for at least minLeaseDuration.
// A non-empty promotionPolicy is stored as the descriptor's
// eviction_policy attribute after the lease is minted (the returned
// descriptor predates that write); mode is always a read lease in this implementation (the request surface's
// mode=Read is the only mode the reference system defines).
func (d *Data) AcquireReadLease(ctx context.Context, id payload.ID, minTier payload.Tier, promotionPolicy string, minLeaseDuration time.Duration) (LeaseGrant, error) {
	l, desc, err := d.mgr.AcquireReadLease(ctx, id, minTier, minLeaseDuration)
	if err != nil {
		return LeaseGrant{}, err
	}
	if promotionPolicy != "" {
		_ = d.mgr.SetAttribute(ctx, id, "eviction_policy", promotionPolicy)
	}
	return LeaseGrant{Descriptor: desc, LeaseID: l.LeaseID, ExpiresAt: l.ExpiresAt}, nil
}

// ReleaseLease releases a previously acquired read lease. Best-effort:
// releasing an unknown lease id is not an error.
func (d *Data) ReleaseLease(ctx context.Context, leaseID lease.ID) {
	d.mgr.ReleaseLease(ctx, leaseID)
}
