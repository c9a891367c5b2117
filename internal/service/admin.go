package service

import (
	"context"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// Stats is the Admin surface's snapshot of per-tier occupancy.
type Stats struct {
	PayloadsRam, PayloadsDisk, PayloadsGpu uint64
	BytesRam, BytesDisk, BytesGpu          uint64
}

// Admin is the operational surface: right now just Stats, computed by
// scanning the repository rather than tracking running counters, since
// the repository is already the single source of truth for placement.
type Admin struct {
	repo repository.Repository
}

// NewAdmin wraps repo as an Admin surface.
func NewAdmin(repo repository.Repository) *Admin { return &Admin{repo: repo} }

// Stats tallies payload count and byte occupancy per tier.
func (a *Admin) Stats(ctx context.Context) (Stats, error) {
	tx, err := a.repo.Begin(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer tx.Rollback(ctx)

	var s Stats
	for _, tier := range []payload.Tier{payload.TierRam, payload.TierDisk, payload.TierGpu, payload.TierObject} {
		t := tier
		recs, err := a.repo.ListPayloads(ctx, tx, repository.Filter{Tier: &t})
		if err != nil {
			return Stats{}, err
		}
		var count, bytes uint64
		for _, rec := range recs {
			count++
			bytes += rec.Size
		}
		switch tier {
		case payload.TierRam:
			s.PayloadsRam, s.BytesRam = count, bytes
		case payload.TierDisk:
			s.PayloadsDisk, s.BytesDisk = count, bytes
		case payload.TierGpu:
			s.PayloadsGpu, s.BytesGpu = count, bytes
		}
		// TierObject is tallied in the loop for filter consistency but
		// has no slot in the Stats struct the spec defines.
	}
	return s, nil
}
