// Package repository defines the persistent, transactional backbone of the
// payload manager: the authoritative store for payload records, metadata
// snapshots, lineage edges, and stream state.
//
// CRITICAL GUARANTEES any implementation must uphold:
//
//   - All writes go through a Transaction obtained from Begin().
//   - Reads performed inside a transaction observe that transaction's own
//     uncommitted writes (read-your-writes).
//   - Writes are invisible to other transactions until Commit() succeeds.
//   - A Transaction dropped without a call to Commit() behaves as if
//     Rollback() had been called — no partial writes survive.
//   - Version increments (UpdatePayload) are atomic with respect to
//     concurrent updates; the repository is the single source of truth
//     for payload state, metadata, and lineage.
package repository

import (
	"context"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// Transaction is an exclusive handle to a unit of work against a
// Repository. Obtained from Repository.Begin; exactly one of Commit or
// Rollback must be called, or both work-alikes if Commit fails.
type Transaction interface {
	// Commit makes all writes performed under this transaction visible to
	// subsequent transactions. Returns a *payload.Error with KindBusy or
	// KindInvalidState on a serialization failure the caller should retry.
	Commit(ctx context.Context) error

	// Rollback discards all writes performed under this transaction. Safe
	// to call after a failed Commit, and safe to call multiple times.
	Rollback(ctx context.Context) error
}

// Filter narrows ListPayloads results. Zero-value fields are unconstrained.
type Filter struct {
	Tier     *payload.Tier
	State    *payload.State
	GroupID  *string
	Pinned   *bool
	Limit    int
	Offset   int
}

// AccessEvent records that a payload was read, for LRU-style eviction
// policies that rank by recency.
type AccessEvent struct {
	ID         payload.ID
	AccessedAt int64 // unix millis
}

// LineageEdge is a directed, domain-agnostic edge between two payloads:
// "child was derived from parent via operation, playing role".
type LineageEdge struct {
	ParentID   payload.ID
	ChildID    payload.ID
	Operation  string
	Role       string
	Parameters string // opaque JSON/CBOR/protobuf blob
	CreatedAt  int64  // unix millis
}

// MetadataRecord is the current metadata snapshot for a payload, stored as
// an opaque JSON-encoded blob so the repository never needs to understand
// the metadata schema in use.
type MetadataRecord struct {
	ID        payload.ID
	JSON      string
	Schema    string
	UpdatedAt int64 // unix millis
}

// StreamRecord is a named, namespaced append-only log with retention
// limits. NextOffset is the dense offset the next appended entry will
// receive; it is the repository's authoritative allocator, so two
// concurrent Append calls against the same stream never collide.
type StreamRecord struct {
	ID                  uint64
	Namespace           string
	Name                string
	RetentionMaxEntries uint64 // 0 = unlimited
	RetentionMaxAgeSec  uint64 // 0 = unlimited
	NextOffset          uint64
	CreatedAt           int64 // unix millis
}

// StreamEntryRecord is one record in a stream: a reference to a payload
// plus the bookkeeping timestamps kept per entry.
type StreamEntryRecord struct {
	StreamID   uint64
	Offset     uint64 // dense, strictly increasing from 0 per stream
	PayloadID  payload.ID
	EventTime  int64 // unix millis
	AppendTime int64 // unix millis
	Tags       string
}

// StreamConsumerOffsetRecord is a consumer group's committed read
// position in a stream.
type StreamConsumerOffsetRecord struct {
	StreamID      uint64
	ConsumerGroup string
	Offset        uint64
	UpdatedAt     int64 // unix millis
}

// Repository is the persistent backbone every storage backend reads
// placement from and every manager operation writes through.
//
// Implementations: badgerrepo (embedded LSM, default durable backend),
// sqlrepo (database/sql over sqlite or postgres), memoryrepo (in-process
// map, used for tests and ephemeral deployments).
type Repository interface {
	// Begin starts a new transaction. Implementations that cannot support
	// concurrent transactions (e.g. a single-writer embedded store) serialize
	// Begin calls internally rather than surfacing that as a capability the
	// caller must check for ahead of time.
	Begin(ctx context.Context) (Transaction, error)

	// Payload lifecycle.
	InsertPayload(ctx context.Context, tx Transaction, rec payload.Record) error
	GetPayload(ctx context.Context, tx Transaction, id payload.ID) (payload.Record, error)
	UpdatePayload(ctx context.Context, tx Transaction, rec payload.Record) error
	DeletePayload(ctx context.Context, tx Transaction, id payload.ID) error
	ListPayloads(ctx context.Context, tx Transaction, filter Filter) ([]payload.Record, error)

	// Metadata (current snapshot, replace-or-merge is a manager concern).
	UpsertMetadata(ctx context.Context, tx Transaction, rec MetadataRecord) error
	GetMetadata(ctx context.Context, tx Transaction, id payload.ID) (MetadataRecord, error)

	// Lineage.
	InsertLineage(ctx context.Context, tx Transaction, edge LineageEdge) error
	GetParents(ctx context.Context, tx Transaction, id payload.ID) ([]LineageEdge, error)
	GetChildren(ctx context.Context, tx Transaction, id payload.ID) ([]LineageEdge, error)

	// Streams. A stream's entries and consumer offsets are owned by the
	// stream row: DeleteStream cascades to both, so a caller never has
	// to clean them up separately and a crash mid-delete can never leave
	// an orphaned entry or checkpoint behind.
	CreateStream(ctx context.Context, tx Transaction, rec StreamRecord) (StreamRecord, error)
	GetStream(ctx context.Context, tx Transaction, id uint64) (StreamRecord, error)
	GetStreamByName(ctx context.Context, tx Transaction, namespace, name string) (StreamRecord, error)
	UpdateStream(ctx context.Context, tx Transaction, rec StreamRecord) error
	DeleteStream(ctx context.Context, tx Transaction, id uint64) error

	// Stream entries, ordered by Offset ascending.
	AppendStreamEntry(ctx context.Context, tx Transaction, entry StreamEntryRecord) error
	ListStreamEntries(ctx context.Context, tx Transaction, streamID uint64, fromOffset uint64, limit int) ([]StreamEntryRecord, error)
	DeleteStreamEntriesBefore(ctx context.Context, tx Transaction, streamID uint64, offset uint64) error

	// Stream consumer offsets.
	UpsertStreamConsumerOffset(ctx context.Context, tx Transaction, rec StreamConsumerOffsetRecord) error
	GetStreamConsumerOffset(ctx context.Context, tx Transaction, streamID uint64, consumerGroup string) (StreamConsumerOffsetRecord, bool, error)
	ListStreamConsumerOffsets(ctx context.Context, tx Transaction, streamID uint64) ([]StreamConsumerOffsetRecord, error)

	// Close releases any resources (file handles, connection pools) held
	// by the repository.
	Close() error
}
