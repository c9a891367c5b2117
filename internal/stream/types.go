// Package stream implements the append-only stream subsystem: durable,
// strictly-ordered logs of payload references that consumer groups can
// read independently, with retention trimming that never discards an
// entry a consumer group hasn't yet committed past.
//
// Grounded on original_source/internal/db/model/stream_record.hpp,
// stream_entry_record.hpp, and stream_consumer_offset_record.hpp — the
// row shapes the reference system persists for a stream, its entries,
// and its per-consumer-group checkpoints. The reference
// internal/service/stream_service.{hpp,cpp} only declares the
// CreateStream/Append/Read/Subscribe/Commit/GetCommitted/GetRange
// surface; every method throws "not implemented yet". This package is
// that implementation, built directly off the row shapes the reference
// already committed to.
package stream

import (
	"time"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// ID identifies a stream. Mirrors StreamRecord.stream_id.
type ID = uint64

// Stream is a named, namespaced append-only log with retention limits.
// Mirrors StreamRecord.
type Stream struct {
	ID                  ID
	Namespace           string
	Name                string
	RetentionMaxEntries uint64 // 0 = unlimited
	RetentionMaxAgeSec  uint64 // 0 = unlimited
	CreatedAt           time.Time
}

// Entry is one record in a stream: a reference to a payload plus the
// bookkeeping timestamps the reference system tracks per entry.
// Mirrors StreamEntryRecord.
type Entry struct {
	StreamID   ID
	Offset     uint64 // dense, strictly increasing from 0 per stream
	PayloadID  payload.ID
	EventTime  time.Time
	AppendTime time.Time
	Duration   time.Duration
	Tags       string
}

// ConsumerOffset is a consumer group's committed read position in a
// stream. Mirrors StreamConsumerOffsetRecord.
type ConsumerOffset struct {
	StreamID      ID
	ConsumerGroup string
	Offset        uint64
	UpdatedAt     time.Time
}
