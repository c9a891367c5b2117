package tiering

import (
	"context"
	"sort"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// Policy decides which payload, if any, to evict from a given tier
// under pressure. Mirrors TieringPolicy's two Choose*Eviction methods.
type Policy interface {
	ChooseRamEviction(ctx context.Context, state *PressureState) (payload.ID, bool)
	ChooseGpuEviction(ctx context.Context, state *PressureState) (payload.ID, bool)
}

// LRUPolicy picks the least-recently-accessed unpinned, unleased
// payload on the pressured tier. The reference TieringPolicy is an
// explicit placeholder naming "LRU / LFU / cost model" as the intended
// follow-up; this is that follow-up, scoped to plain LRU with a leased/
// pinned exclusion so eviction never contends with an active reader or
// an operator-pinned payload.
type LRUPolicy struct {
	repo   repository.Repository
	leases *lease.Manager
}

// NewLRUPolicy constructs an LRUPolicy reading candidates from repo and
// checking lease state via leases.
func NewLRUPolicy(repo repository.Repository, leases *lease.Manager) *LRUPolicy {
	return &LRUPolicy{repo: repo, leases: leases}
}

func (p *LRUPolicy) ChooseRamEviction(ctx context.Context, state *PressureState) (payload.ID, bool) {
	if !state.RamPressure() {
		return payload.ID{}, false
	}
	return p.chooseLRU(ctx, payload.TierRam)
}

func (p *LRUPolicy) ChooseGpuEviction(ctx context.Context, state *PressureState) (payload.ID, bool) {
	if !state.GpuPressure() {
		return payload.ID{}, false
	}
	return p.chooseLRU(ctx, payload.TierGpu)
}

func (p *LRUPolicy) chooseLRU(ctx context.Context, tier payload.Tier) (payload.ID, bool) {
	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return payload.ID{}, false
	}
	defer tx.Rollback(ctx)

	filterTier := tier
	filterState := payload.StateActive
	records, err := p.repo.ListPayloads(ctx, tx, repository.Filter{Tier: &filterTier, State: &filterState})
	if err != nil || len(records) == 0 {
		return payload.ID{}, false
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastAccessedAt.Before(records[j].LastAccessedAt)
	})

	for _, rec := range records {
		if rec.Pinned {
			continue
		}
		if p.leases != nil && p.leases.HasActiveLeases(ctx, rec.ID) {
			continue
		}
		return rec.ID, true
	}
	return payload.ID{}, false
}

var _ Policy = (*LRUPolicy)(nil)
