// Package payload defines the core domain model for the tiered payload
// manager: payload identity, tier hierarchy, lifecycle state machine, and
// the placement/location variants that pin a payload to a physical medium.
//
// Everything in this package is plain data and pure functions — no I/O,
// no locking. The packages that mutate this state (manager, lease, spill,
// tiering) own the concurrency story; this package only describes shapes
// and the rules for moving between them.
package payload

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is a payload's identity: a 16-byte RFC 4122 v4 UUID.
type ID uuid.UUID

// NewID mints a fresh random payload identifier.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses a canonical UUID string into an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("payload: parse id %q: %w", s, err)
	}
	return ID(u), nil
}

// String renders the canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the all-zero nil UUID.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Tier names a storage medium class, ordered from fastest/most expensive
// (Gpu) to slowest/cheapest (Object). The numeric ordering is meaningful:
// callers compare tiers with < and > to reason about "faster than" /
// "slower than" without a lookup table.
type Tier uint8

const (
	// TierUnspecified is the zero value; never a valid placement.
	TierUnspecified Tier = iota
	// TierGpu is on-device GPU memory, addressed via IPC handle.
	TierGpu
	// TierRam is host RAM, backed by named shared memory.
	TierRam
	// TierDisk is local disk, backed by a regular file.
	TierDisk
	// TierObject is a remote object store (S3-compatible).
	TierObject
)

// String returns the lowercase tier name used in logs, config, and metrics.
func (t Tier) String() string {
	switch t {
	case TierGpu:
		return "gpu"
	case TierRam:
		return "ram"
	case TierDisk:
		return "disk"
	case TierObject:
		return "object"
	default:
		return "unspecified"
	}
}

// ParseTier parses the lowercase tier name back into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "gpu":
		return TierGpu, nil
	case "ram":
		return TierRam, nil
	case "disk":
		return TierDisk, nil
	case "object":
		return TierObject, nil
	default:
		return TierUnspecified, fmt.Errorf("payload: unknown tier %q", s)
	}
}

// Faster reports whether t is strictly faster (lower tier number) than other.
func (t Tier) Faster(other Tier) bool { return t < other }

// State is a node in the payload lifecycle state machine.
type State uint8

const (
	StateUnspecified State = iota
	// StateAllocated: space reserved, bytes not yet committed/readable.
	StateAllocated
	// StateActive: committed and readable.
	StateActive
	// StateSpilling: a migration to a slower tier is in flight.
	StateSpilling
	// StateDurable: resident on a durable tier (Disk/Object). Advisory —
	// derived from placement unless an eviction policy overrides it.
	StateDurable
	// StateEvicting: an eviction/promotion is in flight.
	StateEvicting
	// StateDeleting: a delete has been accepted, cleanup in flight.
	StateDeleting
	// StateExpired: ttl elapsed; terminal.
	StateExpired
	// StateDeleted: fully removed; terminal.
	StateDeleted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateAllocated:
		return "allocated"
	case StateActive:
		return "active"
	case StateSpilling:
		return "spilling"
	case StateDurable:
		return "durable"
	case StateEvicting:
		return "evicting"
	case StateDeleting:
		return "deleting"
	case StateExpired:
		return "expired"
	case StateDeleted:
		return "deleted"
	default:
		return "unspecified"
	}
}

// IsTerminal reports whether s is a terminal state. No transition is legal
// out of a terminal state.
func (s State) IsTerminal() bool {
	return s == StateExpired || s == StateDeleted
}

// CanTransition reports whether the state machine permits from -> to.
//
// Rules (mirrors the reference lifecycle):
//   - a state can always "transition" to itself (idempotent no-op)
//   - nothing transitions out of a terminal state
//   - nothing transitions into Unspecified
//   - everything can transition to Deleted (delete is always accepted)
//   - otherwise the transition must move the state machine forward
//     (to's ordinal must be >= from's ordinal) — states do not regress
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StateUnspecified {
		return false
	}
	if to == StateDeleted {
		return true
	}
	return to >= from
}

// GpuLocation addresses a span of device memory via a cross-process IPC
// handle. Only meaningful for payloads pinned to TierGpu.
type GpuLocation struct {
	DeviceID    uint32
	IPCHandle   string
	LengthBytes uint64
}

// RamLocation addresses a span inside a named POSIX shared-memory segment.
type RamLocation struct {
	ShmName     string
	SlabID      uint32
	BlockIndex  uint64
	LengthBytes uint64
}

// DiskLocation addresses a byte range inside a file on local disk.
type DiskLocation struct {
	Path        string
	OffsetBytes uint64
	LengthBytes uint64
}

// ObjectLocation addresses a single object in a remote object store.
type ObjectLocation struct {
	Bucket      string
	Key         string
	LengthBytes uint64
}

// Location is a tagged union over the four placement kinds. Exactly one of
// the pointer fields is non-nil once a payload has been allocated on a
// tier (Allocate sets it before commit); the zero Location has none set.
type Location struct {
	Gpu    *GpuLocation
	Ram    *RamLocation
	Disk   *DiskLocation
	Object *ObjectLocation
}

// Tier derives the tier implied by whichever location field is populated.
// Returns TierUnspecified if none are set.
func (l Location) Tier() Tier {
	switch {
	case l.Gpu != nil:
		return TierGpu
	case l.Ram != nil:
		return TierRam
	case l.Disk != nil:
		return TierDisk
	case l.Object != nil:
		return TierObject
	default:
		return TierUnspecified
	}
}

// Length returns the byte length of whichever location variant is set.
func (l Location) Length() uint64 {
	switch {
	case l.Gpu != nil:
		return l.Gpu.LengthBytes
	case l.Ram != nil:
		return l.Ram.LengthBytes
	case l.Disk != nil:
		return l.Disk.LengthBytes
	case l.Object != nil:
		return l.Object.LengthBytes
	default:
		return 0
	}
}

// Descriptor is the public view of a payload: everything a caller needs to
// resolve, read, and reason about a payload without touching internal
// bookkeeping (spill attempt counters, per-id locks, etc).
type Descriptor struct {
	ID       ID
	Name     string
	GroupID  string
	Size     uint64
	Tier     Tier
	State    State
	Location Location
	Version  uint64

	CreatedAt      time.Time
	LastAccessedAt time.Time
	LastSpilledAt  time.Time
	AccessCount    uint64

	Checksum          string
	RequireDurability bool
	Pinned            bool

	SpillPending   bool
	SpillAttempts  uint32
	LastSpillError string

	// ExpiresAt is the ttl_ms expiry deadline from Allocate, zero meaning
	// no expiry. Checked lazily on access (ResolveSnapshot, AcquireReadLease)
	// rather than swept in the background.
	ExpiresAt time.Time

	Attributes map[string]string
}

// IsExpired reports whether d carries a non-zero expiry that has passed
// as of now.
func (d Descriptor) IsExpired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

// Record is the full persisted row for a payload, as stored by a
// repository backend. It embeds Descriptor and adds fields that are
// repository-internal bookkeeping rather than part of the public API.
type Record struct {
	Descriptor
}
