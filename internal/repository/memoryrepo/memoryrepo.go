// Package memoryrepo implements repository.Repository entirely in memory.
// It is used for unit tests and for ephemeral deployments that accept
// losing all state on restart.
//
// The transaction model mirrors the teacher's in-process transaction
// pattern (pkg/storage/transaction.go in the retrieval corpus): a
// Transaction stages its writes in private "pending" maps so that reads
// performed under the same transaction observe its own uncommitted writes,
// and nothing becomes visible to other transactions until Commit copies
// the staged maps into the shared store under a single lock acquisition.
package memoryrepo

import (
	"context"
	"sync"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// Repository is an in-memory repository.Repository. Only one transaction
// may be committing at a time; Begin does not block concurrent readers
// outside of a transaction's own Commit window.
type Repository struct {
	mu sync.Mutex

	payloads map[payload.ID]payload.Record
	metadata map[payload.ID]repository.MetadataRecord
	lineage  []repository.LineageEdge
	closed   bool

	streams        map[uint64]repository.StreamRecord
	streamsByName  map[string]uint64 // "namespace\x00name" -> id
	streamEntries  map[uint64][]repository.StreamEntryRecord
	consumerOffset map[uint64]map[string]repository.StreamConsumerOffsetRecord
	nextStreamID   uint64
}

// New constructs an empty in-memory repository.
func New() *Repository {
	return &Repository{
		payloads:       make(map[payload.ID]payload.Record),
		metadata:       make(map[payload.ID]repository.MetadataRecord),
		streams:        make(map[uint64]repository.StreamRecord),
		streamsByName:  make(map[string]uint64),
		streamEntries:  make(map[uint64][]repository.StreamEntryRecord),
		consumerOffset: make(map[uint64]map[string]repository.StreamConsumerOffsetRecord),
	}
}

func streamNameKey(namespace, name string) string { return namespace + "\x00" + name }

// Begin starts a new transaction against r.
func (r *Repository) Begin(ctx context.Context) (repository.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, payload.WrapError(payload.KindInvalidState, nil, "repository closed")
	}

	tx := &transaction{
		repo:           r,
		pendingPayload: make(map[payload.ID]*payload.Record),
		deletedPayload: make(map[payload.ID]bool),
		pendingMeta:    make(map[payload.ID]repository.MetadataRecord),
		pendingLineage: nil,
	}
	return tx, nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// transaction stages writes privately until Commit applies them in one
// locked step. A nil entry in pendingPayload with deletedPayload[id]==true
// models a staged delete; a non-nil entry models a staged insert/update.
type transaction struct {
	mu       sync.Mutex
	repo     *Repository
	done     bool

	pendingPayload map[payload.ID]*payload.Record
	deletedPayload map[payload.ID]bool
	pendingMeta    map[payload.ID]repository.MetadataRecord
	pendingLineage []repository.LineageEdge

	pendingStream         map[uint64]*repository.StreamRecord
	pendingStreamName     map[string]uint64
	deletedStream         map[uint64]bool
	pendingEntries        map[uint64][]repository.StreamEntryRecord
	trimStreamBefore      map[uint64]uint64
	pendingConsumerOffset map[uint64]map[string]repository.StreamConsumerOffsetRecord
}

func (tx *transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return payload.NewError(payload.KindInvalidState, "transaction already closed")
	}
	tx.done = true

	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()

	for id := range tx.deletedPayload {
		delete(tx.repo.payloads, id)
	}
	for id, rec := range tx.pendingPayload {
		tx.repo.payloads[id] = *rec
	}
	for id, rec := range tx.pendingMeta {
		tx.repo.metadata[id] = rec
	}
	tx.repo.lineage = append(tx.repo.lineage, tx.pendingLineage...)

	for id := range tx.deletedStream {
		if rec, ok := tx.repo.streams[id]; ok {
			delete(tx.repo.streamsByName, streamNameKey(rec.Namespace, rec.Name))
		}
		delete(tx.repo.streams, id)
		delete(tx.repo.streamEntries, id)
		delete(tx.repo.consumerOffset, id)
	}
	for id, rec := range tx.pendingStream {
		tx.repo.streams[id] = *rec
	}
	for key, id := range tx.pendingStreamName {
		tx.repo.streamsByName[key] = id
	}
	for id, offset := range tx.trimStreamBefore {
		entries := tx.repo.streamEntries[id]
		trimmed := entries[:0:0]
		for _, e := range entries {
			if e.Offset >= offset {
				trimmed = append(trimmed, e)
			}
		}
		tx.repo.streamEntries[id] = trimmed
	}
	for id, entries := range tx.pendingEntries {
		tx.repo.streamEntries[id] = append(tx.repo.streamEntries[id], entries...)
	}
	for id, offsets := range tx.pendingConsumerOffset {
		if tx.repo.consumerOffset[id] == nil {
			tx.repo.consumerOffset[id] = make(map[string]repository.StreamConsumerOffsetRecord)
		}
		for group, rec := range offsets {
			tx.repo.consumerOffset[id][group] = rec
		}
	}
	return nil
}

func (tx *transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	return nil
}

func (tx *transaction) view(id payload.ID, repo *Repository) (payload.Record, bool) {
	if tx.deletedPayload[id] {
		return payload.Record{}, false
	}
	if rec, ok := tx.pendingPayload[id]; ok {
		return *rec, true
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	rec, ok := repo.payloads[id]
	return rec, ok
}

func asTx(tx repository.Transaction) (*transaction, error) {
	t, ok := tx.(*transaction)
	if !ok {
		return nil, payload.NewError(payload.KindInvalidArgument, "transaction not from memoryrepo")
	}
	if t.done {
		return nil, payload.NewError(payload.KindInvalidState, "transaction already closed")
	}
	return t, nil
}

func (r *Repository) InsertPayload(ctx context.Context, txn repository.Transaction, rec payload.Record) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.view(rec.ID, r); ok {
		return payload.WrapError(payload.KindAlreadyExists, nil, "payload %s already exists", rec.ID)
	}
	cp := rec
	t.pendingPayload[rec.ID] = &cp
	delete(t.deletedPayload, rec.ID)
	return nil
}

func (r *Repository) GetPayload(ctx context.Context, txn repository.Transaction, id payload.ID) (payload.Record, error) {
	t, err := asTx(txn)
	if err != nil {
		return payload.Record{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.view(id, r)
	if !ok {
		return payload.Record{}, payload.WrapError(payload.KindNotFound, nil, "payload %s not found", id)
	}
	return rec, nil
}

func (r *Repository) UpdatePayload(ctx context.Context, txn repository.Transaction, rec payload.Record) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.view(rec.ID, r); !ok {
		return payload.WrapError(payload.KindNotFound, nil, "payload %s not found", rec.ID)
	}
	cp := rec
	t.pendingPayload[rec.ID] = &cp
	delete(t.deletedPayload, rec.ID)
	return nil
}

func (r *Repository) DeletePayload(ctx context.Context, txn repository.Transaction, id payload.ID) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.view(id, r); !ok {
		return payload.WrapError(payload.KindNotFound, nil, "payload %s not found", id)
	}
	delete(t.pendingPayload, id)
	t.deletedPayload[id] = true
	return nil
}

func (r *Repository) ListPayloads(ctx context.Context, txn repository.Transaction, filter repository.Filter) ([]payload.Record, error) {
	t, err := asTx(txn)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r.mu.Lock()
	merged := make(map[payload.ID]payload.Record, len(r.payloads))
	for id, rec := range r.payloads {
		merged[id] = rec
	}
	r.mu.Unlock()

	for id := range t.deletedPayload {
		delete(merged, id)
	}
	for id, rec := range t.pendingPayload {
		merged[id] = *rec
	}

	out := make([]payload.Record, 0, len(merged))
	for _, rec := range merged {
		if !matches(rec, filter) {
			continue
		}
		out = append(out, rec)
	}
	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(rec payload.Record, f repository.Filter) bool {
	if f.Tier != nil && rec.Tier != *f.Tier {
		return false
	}
	if f.State != nil && rec.State != *f.State {
		return false
	}
	if f.GroupID != nil && rec.GroupID != *f.GroupID {
		return false
	}
	if f.Pinned != nil && rec.Pinned != *f.Pinned {
		return false
	}
	return true
}

func (r *Repository) UpsertMetadata(ctx context.Context, txn repository.Transaction, rec repository.MetadataRecord) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingMeta[rec.ID] = rec
	return nil
}

func (r *Repository) GetMetadata(ctx context.Context, txn repository.Transaction, id payload.ID) (repository.MetadataRecord, error) {
	t, err := asTx(txn)
	if err != nil {
		return repository.MetadataRecord{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.pendingMeta[id]; ok {
		return rec, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.metadata[id]
	if !ok {
		return repository.MetadataRecord{}, payload.WrapError(payload.KindNotFound, nil, "metadata for %s not found", id)
	}
	return rec, nil
}

func (r *Repository) InsertLineage(ctx context.Context, txn repository.Transaction, edge repository.LineageEdge) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingLineage = append(t.pendingLineage, edge)
	return nil
}

func (r *Repository) GetParents(ctx context.Context, txn repository.Transaction, id payload.ID) ([]repository.LineageEdge, error) {
	t, err := asTx(txn)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	edges := append([]repository.LineageEdge(nil), r.lineage...)
	r.mu.Unlock()
	t.mu.Lock()
	edges = append(edges, t.pendingLineage...)
	t.mu.Unlock()
	var out []repository.LineageEdge
	for _, e := range edges {
		if e.ChildID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repository) GetChildren(ctx context.Context, txn repository.Transaction, id payload.ID) ([]repository.LineageEdge, error) {
	t, err := asTx(txn)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	edges := append([]repository.LineageEdge(nil), r.lineage...)
	r.mu.Unlock()
	t.mu.Lock()
	edges = append(edges, t.pendingLineage...)
	t.mu.Unlock()
	var out []repository.LineageEdge
	for _, e := range edges {
		if e.ParentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------

func (r *Repository) CreateStream(ctx context.Context, txn repository.Transaction, rec repository.StreamRecord) (repository.StreamRecord, error) {
	t, err := asTx(txn)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := streamNameKey(rec.Namespace, rec.Name)
	r.mu.Lock()
	_, exists := r.streamsByName[key]
	r.mu.Unlock()
	if exists {
		return repository.StreamRecord{}, payload.WrapError(payload.KindAlreadyExists, nil, "stream %s/%s already exists", rec.Namespace, rec.Name)
	}
	if _, exists := t.pendingStreamName[key]; exists {
		return repository.StreamRecord{}, payload.WrapError(payload.KindAlreadyExists, nil, "stream %s/%s already exists", rec.Namespace, rec.Name)
	}

	r.mu.Lock()
	r.nextStreamID++
	rec.ID = r.nextStreamID
	r.mu.Unlock()

	cp := rec
	if t.pendingStream == nil {
		t.pendingStream = make(map[uint64]*repository.StreamRecord)
	}
	if t.pendingStreamName == nil {
		t.pendingStreamName = make(map[string]uint64)
	}
	t.pendingStream[rec.ID] = &cp
	t.pendingStreamName[key] = rec.ID
	return cp, nil
}

func (r *Repository) GetStream(ctx context.Context, txn repository.Transaction, id uint64) (repository.StreamRecord, error) {
	t, err := asTx(txn)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deletedStream[id] {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, "stream %d not found", id)
	}
	if rec, ok := t.pendingStream[id]; ok {
		return *rec, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.streams[id]
	if !ok {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, "stream %d not found", id)
	}
	return rec, nil
}

func (r *Repository) GetStreamByName(ctx context.Context, txn repository.Transaction, namespace, name string) (repository.StreamRecord, error) {
	t, err := asTx(txn)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	key := streamNameKey(namespace, name)

	t.mu.Lock()
	if id, ok := t.pendingStreamName[key]; ok {
		rec := *t.pendingStream[id]
		t.mu.Unlock()
		return rec, nil
	}
	t.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.streamsByName[key]
	if !ok {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, "stream %s/%s not found", namespace, name)
	}
	rec, ok := r.streams[id]
	if !ok {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, "stream %s/%s not found", namespace, name)
	}
	return rec, nil
}

func (r *Repository) UpdateStream(ctx context.Context, txn repository.Transaction, rec repository.StreamRecord) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := rec
	if t.pendingStream == nil {
		t.pendingStream = make(map[uint64]*repository.StreamRecord)
	}
	t.pendingStream[rec.ID] = &cp
	delete(t.deletedStream, rec.ID)
	return nil
}

func (r *Repository) DeleteStream(ctx context.Context, txn repository.Transaction, id uint64) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deletedStream == nil {
		t.deletedStream = make(map[uint64]bool)
	}
	t.deletedStream[id] = true
	delete(t.pendingStream, id)
	delete(t.pendingEntries, id)
	delete(t.pendingConsumerOffset, id)
	delete(t.trimStreamBefore, id)
	return nil
}

// ---------------------------------------------------------------------
// Stream entries
// ---------------------------------------------------------------------

func (r *Repository) AppendStreamEntry(ctx context.Context, txn repository.Transaction, entry repository.StreamEntryRecord) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingEntries == nil {
		t.pendingEntries = make(map[uint64][]repository.StreamEntryRecord)
	}
	t.pendingEntries[entry.StreamID] = append(t.pendingEntries[entry.StreamID], entry)
	return nil
}

func (r *Repository) ListStreamEntries(ctx context.Context, txn repository.Transaction, streamID uint64, fromOffset uint64, limit int) ([]repository.StreamEntryRecord, error) {
	t, err := asTx(txn)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deletedStream[streamID] {
		return nil, payload.WrapError(payload.KindNotFound, nil, "stream %d not found", streamID)
	}

	r.mu.Lock()
	all := append([]repository.StreamEntryRecord(nil), r.streamEntries[streamID]...)
	r.mu.Unlock()
	all = append(all, t.pendingEntries[streamID]...)

	var out []repository.StreamEntryRecord
	for _, e := range all {
		if e.Offset < fromOffset {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Repository) DeleteStreamEntriesBefore(ctx context.Context, txn repository.Transaction, streamID uint64, offset uint64) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trimStreamBefore == nil {
		t.trimStreamBefore = make(map[uint64]uint64)
	}
	if cur, ok := t.trimStreamBefore[streamID]; !ok || offset > cur {
		t.trimStreamBefore[streamID] = offset
	}
	return nil
}

// ---------------------------------------------------------------------
// Stream consumer offsets
// ---------------------------------------------------------------------

func (r *Repository) UpsertStreamConsumerOffset(ctx context.Context, txn repository.Transaction, rec repository.StreamConsumerOffsetRecord) error {
	t, err := asTx(txn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingConsumerOffset == nil {
		t.pendingConsumerOffset = make(map[uint64]map[string]repository.StreamConsumerOffsetRecord)
	}
	if t.pendingConsumerOffset[rec.StreamID] == nil {
		t.pendingConsumerOffset[rec.StreamID] = make(map[string]repository.StreamConsumerOffsetRecord)
	}
	t.pendingConsumerOffset[rec.StreamID][rec.ConsumerGroup] = rec
	return nil
}

func (r *Repository) GetStreamConsumerOffset(ctx context.Context, txn repository.Transaction, streamID uint64, consumerGroup string) (repository.StreamConsumerOffsetRecord, bool, error) {
	t, err := asTx(txn)
	if err != nil {
		return repository.StreamConsumerOffsetRecord{}, false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.pendingConsumerOffset[streamID]; ok {
		if rec, ok := m[consumerGroup]; ok {
			return rec, true, nil
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.consumerOffset[streamID]
	if !ok {
		return repository.StreamConsumerOffsetRecord{}, false, nil
	}
	rec, ok := m[consumerGroup]
	return rec, ok, nil
}

func (r *Repository) ListStreamConsumerOffsets(ctx context.Context, txn repository.Transaction, streamID uint64) ([]repository.StreamConsumerOffsetRecord, error) {
	t, err := asTx(txn)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make(map[string]repository.StreamConsumerOffsetRecord)
	r.mu.Lock()
	for k, v := range r.consumerOffset[streamID] {
		merged[k] = v
	}
	r.mu.Unlock()
	for k, v := range t.pendingConsumerOffset[streamID] {
		merged[k] = v
	}
	out := make([]repository.StreamConsumerOffsetRecord, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	return out, nil
}

var _ repository.Repository = (*Repository)(nil)
