// Package manager implements the payload lifecycle authority: the single
// place that moves a payload through its state machine, enforces lease
// fencing before eviction or deletion, and keeps the repository and the
// tier storage backends in agreement about where a payload's bytes live.
//
// Grounded on original_source/internal/core/payload_manager.{hpp,cpp}.
// The reference system serializes mutation per payload id implicitly
// through its single-threaded actor model; this port makes that
// explicit with a sharded mutex keyed by id, since Go handlers run
// concurrently. Repository-level writes stay plain overwrite-if-exists
// (see internal/repository) — the serialization guarantee for a given
// payload id comes from this package's per-id lock, not from optimistic
// CAS at the storage layer.
package manager

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/pool"
	"github.com/orneryd/payloadmgr/internal/repository"
	"github.com/orneryd/payloadmgr/internal/storagebackend"
)

const shardCount = 256

// Manager is the payload lifecycle authority described above.
type Manager struct {
	leases *lease.Manager
	stores storagebackend.TierMap
	repo   repository.Repository
	events *eventLog

	shards [shardCount]sync.Mutex
}

// New wires a Manager from its three collaborators: lease bookkeeping,
// tier storage backends, and the metadata repository.
func New(leases *lease.Manager, stores storagebackend.TierMap, repo repository.Repository) *Manager {
	return &Manager{leases: leases, stores: stores, repo: repo, events: newEventLog()}
}

func (m *Manager) lockFor(id payload.ID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(id[:])
	return &m.shards[h.Sum32()%shardCount]
}

// Allocate reserves storage capacity on preferred (or the nearest tier
// that can serve it) and inserts a new payload in StateAllocated.
func (m *Manager) Allocate(ctx context.Context, size uint64, preferred payload.Tier) (*payload.Descriptor, error) {
	id := payload.NewID()

	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tier := preferred
	backend, err := m.stores.Get(tier)
	var buf storagebackend.Buffer
	if err == nil {
		buf, err = backend.Allocate(ctx, id, size)
	}
	if payload.KindOf(err) == payload.KindUnsupported && tier != payload.TierRam {
		tier = payload.TierRam
		if backend, err = m.stores.Get(tier); err == nil {
			buf, err = backend.Allocate(ctx, id, size)
		}
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	desc := &payload.Descriptor{
		ID:        id,
		Size:      size,
		Tier:      tier,
		State:     payload.StateAllocated,
		Version:   1,
		CreatedAt: now,
	}
	desc.Location = locationFor(tier, id, buf)

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.repo.InsertPayload(ctx, tx, payload.Record{Descriptor: *desc}); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return desc, nil
}

func (m *Manager) mu(id payload.ID) *sync.Mutex { return m.lockFor(id) }

// SetRequireDurability flags whether every subsequent migration of id's
// bytes writes to the destination backend with an fsync barrier. Set at
// allocation time from the Catalog surface's persist flag.
func (m *Manager) SetRequireDurability(ctx context.Context, id payload.ID, require bool) error {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return err
	}
	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}
	rec.RequireDurability = require
	rec.Version++
	if err := m.repo.UpdatePayload(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// SetAttribute stores an opaque caller-supplied key/value hint on id's
// descriptor (e.g. a per-payload eviction or promotion policy name from
// the Catalog surface). Does not interpret the value.
func (m *Manager) SetAttribute(ctx context.Context, id payload.ID, key, value string) error {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return err
	}
	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}
	if rec.Attributes == nil {
		rec.Attributes = make(map[string]string)
	}
	rec.Attributes[key] = value
	rec.Version++
	if err := m.repo.UpdatePayload(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// SetExpiry records a ttl deadline on an already-allocated payload. A
// zero expiresAt clears any existing deadline. The deadline is enforced
// lazily: ResolveSnapshot and AcquireReadLease check it on access rather
// than a background sweep moving payloads to StateExpired proactively.
func (m *Manager) SetExpiry(ctx context.Context, id payload.ID, expiresAt time.Time) error {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return err
	}

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}

	rec.ExpiresAt = expiresAt
	rec.Version++
	if err := m.repo.UpdatePayload(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Commit transitions a payload from Allocated to Active, making it
// visible to readers.
func (m *Manager) Commit(ctx context.Context, id payload.ID) (*payload.Descriptor, error) {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if rec.State != payload.StateAllocated {
		tx.Rollback(ctx)
		return nil, payload.NewError(payload.KindInvalidState, "commit: payload %s is in state %s, want allocated", id, rec.State)
	}

	rec.State = payload.StateActive
	rec.Version++

	if err := m.repo.UpdatePayload(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &rec.Descriptor, nil
}

// Delete removes a payload's bytes and metadata. Active leases block
// deletion unless force is set, matching the reference Delete's
// lease_mgr_->HasActiveLease check.
func (m *Manager) Delete(ctx context.Context, id payload.ID, force bool) error {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	if !force && m.leases.HasActiveLeases(ctx, id) {
		return payload.NewError(payload.KindLeaseConflict, "delete: payload %s has an active lease", id)
	}

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return err
	}

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		if payload.KindOf(err) == payload.KindNotFound {
			return nil
		}
		return err
	}

	backend, err := m.stores.Get(rec.Tier)
	if err == nil {
		if err := backend.Remove(ctx, id); err != nil {
			tx.Rollback(ctx)
			return err
		}
	}

	if err := m.repo.DeletePayload(ctx, tx, id); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.leases.InvalidateAll(ctx, id)
	return nil
}

// ResolveSnapshot returns an advisory view of a payload's current
// descriptor. The result may be stale the instant it is returned — the
// reference system documents this same caveat on ResolveSnapshot.
func (m *Manager) ResolveSnapshot(ctx context.Context, id payload.ID) (*payload.Descriptor, error) {
	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if rec.State != payload.StateExpired && rec.Descriptor.IsExpired(time.Now()) {
		rec.State = payload.StateExpired
	}
	return &rec.Descriptor, nil
}

// AcquireReadLease guarantees the returned descriptor's placement is
// stable for at least minDuration: promoting to minTier first if
// needed, then minting the lease only after the location is settled.
func (m *Manager) AcquireReadLease(ctx context.Context, id payload.ID, minTier payload.Tier, minDuration time.Duration) (lease.Lease, *payload.Descriptor, error) {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return lease.Lease{}, nil, err
	}

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return lease.Lease{}, nil, err
	}
	if rec.Descriptor.IsExpired(time.Now()) {
		tx.Rollback(ctx)
		return lease.Lease{}, nil, payload.NewError(payload.KindInvalidState, "acquire lease: payload %s has expired", id)
	}

	priorTier := rec.Tier
	promotedTier := false
	if minTier.Faster(rec.Tier) {
		promoted, err := m.promoteLocked(ctx, rec, minTier)
		if err != nil {
			tx.Rollback(ctx)
			return lease.Lease{}, nil, err
		}
		rec = *promoted
		rec.Version++
		promotedTier = true
		if err := m.repo.UpdatePayload(ctx, tx, rec); err != nil {
			tx.Rollback(ctx)
			return lease.Lease{}, nil, err
		}
	}

	if err := m.ensureReadable(ctx, rec.Descriptor); err != nil {
		tx.Rollback(ctx)
		return lease.Lease{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return lease.Lease{}, nil, err
	}
	if promotedTier {
		m.finalizeMove(ctx, id, priorTier)
	}

	l := m.leases.Acquire(ctx, id, rec.Location, minDuration)
	return l, &rec.Descriptor, nil
}

// ReleaseLease releases a previously acquired read lease.
func (m *Manager) ReleaseLease(ctx context.Context, leaseID lease.ID) {
	m.leases.Release(ctx, leaseID)
}

// Promote moves a payload to target tier explicitly (as opposed to the
// implicit promotion AcquireReadLease performs to satisfy min_tier).
func (m *Manager) Promote(ctx context.Context, id payload.ID, target payload.Tier) (*payload.Descriptor, error) {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}

	priorTier := rec.Tier
	promoted, err := m.stageMove(ctx, rec, target)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	promoted.Version = rec.Version + 1

	if err := m.repo.UpdatePayload(ctx, tx, payload.Record{Descriptor: *promoted}); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if priorTier != target {
		m.finalizeMove(ctx, id, priorTier)
	}
	return promoted, nil
}

// ExecuteSpill performs a scheduled durability migration: moves a
// payload from its current (volatile) tier to target, marking it
// StateSpilling for the duration of the move and StateDurable once the
// bytes land on a durable tier. Invoked by the spill worker pool, never
// by request-path callers. Grounded on
// PayloadManager::ExecuteSpill (referenced from spill_worker.cpp, not
// itself part of the header excerpt retrieved, but implied by its
// call site: manager_->ExecuteSpill(task->id, task->target_tier, task->fsync)).
func (m *Manager) ExecuteSpill(ctx context.Context, id payload.ID, target payload.Tier, fsync, waitForLeases bool) (*payload.Descriptor, error) {
	m.mu(id).Lock()
	defer m.mu(id).Unlock()

	if err := m.awaitLeaseClearLocked(ctx, id, waitForLeases); err != nil {
		return nil, err
	}

	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := m.repo.GetPayload(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}

	if rec.Tier == target {
		tx.Rollback(ctx)
		return &rec.Descriptor, nil
	}
	if !payload.CanTransition(rec.State, payload.StateSpilling) {
		tx.Rollback(ctx)
		return nil, payload.NewError(payload.KindInvalidState, "spill: payload %s in state %s cannot start spilling", id, rec.State)
	}

	spilling := rec
	spilling.State = payload.StateSpilling
	spilling.Version++
	if err := m.repo.UpdatePayload(ctx, tx, spilling); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	priorTier := spilling.Tier
	movedDesc, moveErr := m.stageMove(ctx, spilling, target)

	tx2, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx2.Rollback(ctx)

	latest, err := m.repo.GetPayload(ctx, tx2, id)
	if err != nil {
		return nil, err
	}

	if moveErr != nil {
		latest.State = payload.StateActive
		latest.SpillAttempts++
		latest.LastSpillError = moveErr.Error()
		latest.Version++
		if err := m.repo.UpdatePayload(ctx, tx2, latest); err != nil {
			return nil, err
		}
		if err := tx2.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, moveErr
	}

	final := payload.Record{Descriptor: *movedDesc}
	final.Version = latest.Version + 1
	final.RequireDurability = latest.RequireDurability
	final.SpillPending = false
	final.SpillAttempts = 0
	final.LastSpillError = ""
	final.LastSpilledAt = time.Now()
	if target == payload.TierDisk || target == payload.TierObject {
		final.State = payload.StateDurable
	} else {
		final.State = payload.StateActive
	}
	if err := m.repo.UpdatePayload(ctx, tx2, final); err != nil {
		return nil, err
	}
	if err := tx2.Commit(ctx); err != nil {
		return nil, err
	}
	m.finalizeMove(ctx, id, priorTier)
	return &final.Descriptor, nil
}

// awaitLeaseClearLocked enforces that a migration never moves bytes out
// from under an active lease, which would break the placement-stability
// promise AcquireReadLease made to the lease holder. With
// waitForLeases=false the caller gets an immediate KindLeaseConflict, the
// same signal Delete gives a non-forced caller; with waitForLeases=true
// it polls until the lease clears or ctx is cancelled. Caller already
// holds the per-id lock.
func (m *Manager) awaitLeaseClearLocked(ctx context.Context, id payload.ID, waitForLeases bool) error {
	if !m.leases.HasActiveLeases(ctx, id) {
		return nil
	}
	if !waitForLeases {
		return payload.NewError(payload.KindLeaseConflict, "spill: payload %s has an active lease", id)
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for m.leases.HasActiveLeases(ctx, id) {
		select {
		case <-ctx.Done():
			return payload.WrapError(payload.KindLeaseConflict, ctx.Err(), "spill: payload %s still leased when context ended", id)
		case <-ticker.C:
		}
	}
	return nil
}

// SpillResult is one payload's outcome from a batch Spill call.
type SpillResult struct {
	ID         payload.ID
	Descriptor *payload.Descriptor
	Err        error
}

// Spill runs ExecuteSpill for each id independently, collecting a
// per-id result rather than aborting the batch on the first failure —
// mirroring the Catalog.Spill(ids[], policy, wait_for_leases) surface's
// "per-id results" return shape.
func (m *Manager) Spill(ctx context.Context, ids []payload.ID, target payload.Tier, fsync, waitForLeases bool) []SpillResult {
	results := make([]SpillResult, len(ids))
	for i, id := range ids {
		desc, err := m.ExecuteSpill(ctx, id, target, fsync, waitForLeases)
		results[i] = SpillResult{ID: id, Descriptor: desc, Err: err}
	}
	return results
}

// promoteLocked performs the tier move AcquireReadLease needs when the
// caller's min_tier requirement is faster than the payload's current
// tier. Caller already holds the per-id lock.
func (m *Manager) promoteLocked(ctx context.Context, rec payload.Record, target payload.Tier) (*payload.Record, error) {
	desc, err := m.stageMove(ctx, rec, target)
	if err != nil {
		return nil, err
	}
	return &payload.Record{Descriptor: *desc}, nil
}

// stageMove copies a payload's bytes from its current backend into
// target's backend and returns the descriptor as it will look once the
// move is durable. It deliberately does NOT remove the source copy —
// per §4.D steps 3-4 and §5's durability ordering (destination write,
// then repository commit, then source removal), the old copy may only
// be freed once the caller has committed the new placement to the
// repository; removing it here, ahead of that commit, would leave a
// payload with no readable copy anywhere if the process crashed in
// between. Callers commit the returned descriptor, then call
// finalizeMove. Grounded on StorageRouter::Promote's copy-then-retarget
// semantics.
func (m *Manager) stageMove(ctx context.Context, rec payload.Record, target payload.Tier) (*payload.Descriptor, error) {
	if rec.Tier == target {
		return &rec.Descriptor, nil
	}

	src, err := m.stores.Get(rec.Tier)
	if err != nil {
		return nil, err
	}
	dst, err := m.stores.Get(target)
	if err != nil {
		return nil, err
	}

	data, err := src.Read(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if err := dst.Write(ctx, rec.ID, data, rec.RequireDurability); err != nil {
		pool.PutBuffer(data)
		return nil, err
	}
	size := uint64(len(data))
	// data was copied into dst by Write; nothing downstream holds onto it.
	pool.PutBuffer(data)

	desc := rec.Descriptor
	desc.Tier = target
	desc.Location = locationFromLength(target, rec.ID, size)
	desc.LastAccessedAt = time.Now()
	return &desc, nil
}

// finalizeMove frees id's prior-tier copy once the repository has
// durably committed the new placement stageMove staged. Best-effort:
// a failure here leaves a harmless stale copy on priorTier rather than
// corrupting the already-committed descriptor, so it's logged rather
// than propagated to the caller.
func (m *Manager) finalizeMove(ctx context.Context, id payload.ID, priorTier payload.Tier) {
	src, err := m.stores.Get(priorTier)
	if err != nil {
		return
	}
	if err := src.Remove(ctx, id); err != nil {
		log.Printf("manager: failed to remove stale copy of %s from tier %s: %v", id, priorTier, err)
	}
}

// ensureReadable validates a descriptor is safe to hand back to a
// caller: it must be in a readable state and its backing bytes must
// actually exist, matching PayloadManager::EnsureReadable.
func (m *Manager) ensureReadable(ctx context.Context, desc payload.Descriptor) error {
	if desc.State != payload.StateActive && desc.State != payload.StateDurable {
		return payload.NewError(payload.KindInvalidState, "payload %s not readable: state is %s", desc.ID, desc.State)
	}

	backend, err := m.stores.Get(desc.Tier)
	if err != nil {
		return err
	}
	if _, err := backend.Size(ctx, desc.ID); err != nil {
		return payload.WrapError(payload.KindInvalidState, err, "payload %s location missing", desc.ID)
	}
	return nil
}

// locationFor builds a Location tagged union pointing at tier's storage
// for id. When buf is nil (the Promote/stageMove path, where the new
// backend already knows the byte length from the Write call), the
// length is left zero and locationFromLength should be used instead.
func locationFor(tier payload.Tier, id payload.ID, buf storagebackend.Buffer) payload.Location {
	var length uint64
	if buf != nil {
		length = uint64(buf.Len())
	}
	return locationFromLength(tier, id, length)
}

func locationFromLength(tier payload.Tier, id payload.ID, length uint64) payload.Location {
	switch tier {
	case payload.TierGpu:
		return payload.Location{Gpu: &payload.GpuLocation{LengthBytes: length}}
	case payload.TierRam:
		return payload.Location{Ram: &payload.RamLocation{ShmName: id.String(), LengthBytes: length}}
	case payload.TierDisk:
		return payload.Location{Disk: &payload.DiskLocation{Path: id.String() + ".bin", LengthBytes: length}}
	case payload.TierObject:
		return payload.Location{Object: &payload.ObjectLocation{Key: id.String() + ".bin", LengthBytes: length}}
	default:
		return payload.Location{}
	}
}
