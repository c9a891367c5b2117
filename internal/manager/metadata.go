package manager

import (
	"context"
	"sync"
	"time"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// MetadataMode selects how UpdatePayloadMetadata combines an update
// with whatever metadata is already stored for a payload.
type MetadataMode int

const (
	// MetadataReplace overwrites the stored metadata outright.
	MetadataReplace MetadataMode = iota
	// MetadataMerge keeps the existing JSON/Schema fields the update
	// leaves blank, matching MetadataCache::Merge's field-by-field
	// overlay.
	MetadataMerge
)

// MetadataEvent is one entry in a payload's append-only metadata
// history. Mirrors PayloadMetadataEvent from
// payload_manager_service.cpp's AppendPayloadMetadataEvent: a
// timestamped snapshot plus the source that produced it and the
// caller-supplied version tag.
type MetadataEvent struct {
	ID        payload.ID
	JSON      string
	Schema    string
	Source    string
	Version   string
	EventTime time.Time
}

// eventLog is the in-memory metadata event history the reference keeps
// inline on each payload record (rec->metadata_events). It is
// deliberately not part of internal/repository: the reference treats
// this as an ephemeral diagnostic trail, not part of the durable
// payload record proper.
type eventLog struct {
	mu   sync.Mutex
	byID map[payload.ID][]MetadataEvent
}

func newEventLog() *eventLog { return &eventLog{byID: make(map[payload.ID][]MetadataEvent)} }

func (l *eventLog) append(e MetadataEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[e.ID] = append(l.byID[e.ID], e)
}

func (l *eventLog) list(id payload.ID, start, end time.Time) []MetadataEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []MetadataEvent
	for _, e := range l.byID[id] {
		if !start.IsZero() && e.EventTime.Before(start) {
			continue
		}
		if !end.IsZero() && e.EventTime.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// UpdatePayloadMetadata applies an update to id's stored metadata
// snapshot, either replacing it outright or merging field-by-field.
// Grounded on MetadataCache::Put/Merge (metadata_cache.cpp); unlike the
// reference's purely in-memory cache, this stores through the
// repository so metadata survives a restart.
func (m *Manager) UpdatePayloadMetadata(ctx context.Context, id payload.ID, mode MetadataMode, json, schema string) error {
	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return err
	}

	rec := repository.MetadataRecord{ID: id, JSON: json, Schema: schema, UpdatedAt: time.Now().UnixMilli()}

	if mode == MetadataMerge {
		existing, err := m.repo.GetMetadata(ctx, tx, id)
		if err == nil {
			if json == "" {
				rec.JSON = existing.JSON
			}
			if schema == "" {
				rec.Schema = existing.Schema
			}
		} else if payload.KindOf(err) != payload.KindNotFound {
			tx.Rollback(ctx)
			return err
		}
	}

	if err := m.repo.UpsertMetadata(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetPayloadMetadata returns id's current metadata snapshot.
func (m *Manager) GetPayloadMetadata(ctx context.Context, id payload.ID) (repository.MetadataRecord, error) {
	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return repository.MetadataRecord{}, err
	}
	defer tx.Rollback(ctx)
	return m.repo.GetMetadata(ctx, tx, id)
}

// AppendPayloadMetadataEvent records one entry in id's metadata event
// history and returns the time it was recorded.
func (m *Manager) AppendPayloadMetadataEvent(id payload.ID, json, schema, source, version string) time.Time {
	now := time.Now()
	m.events.append(MetadataEvent{
		ID: id, JSON: json, Schema: schema,
		Source: source, Version: version, EventTime: now,
	})
	return now
}

// ListPayloadMetadataEvents returns id's recorded metadata events
// within [start, end]. A zero start or end leaves that bound open.
func (m *Manager) ListPayloadMetadataEvents(id payload.ID, start, end time.Time) []MetadataEvent {
	return m.events.list(id, start, end)
}
