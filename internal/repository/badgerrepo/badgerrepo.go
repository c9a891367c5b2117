// Package badgerrepo implements repository.Repository on top of BadgerDB,
// an embedded LSM-tree key-value store. This is the default durable
// repository backend.
//
// Key layout mirrors the teacher's badger-backed storage engine
// (pkg/storage/badger.go in the retrieval corpus): single-byte prefixes
// partition the keyspace, and secondary indexes are themselves just keys
// with empty values, scanned by prefix.
//
//	0x01 + uuid                      -> JSON(payload.Record)
//	0x02 + uuid                      -> JSON(repository.MetadataRecord)
//	0x03 + parentUUID + 0x00 + child -> JSON(repository.LineageEdge)
//	0x04 + childUUID  + 0x00 + parent-> JSON(repository.LineageEdge)  (mirror index)
//
// Badger's own transactions (badger.Txn) already give us read-your-writes
// and snapshot isolation, so repository.Transaction here is a thin wrapper
// around *badger.Txn rather than a hand-rolled staging layer.
package badgerrepo

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

const (
	prefixPayload         = byte(0x01)
	prefixMetadata        = byte(0x02)
	prefixLineageByParent = byte(0x03)
	prefixLineageByChild  = byte(0x04)
	prefixStream          = byte(0x05)
	prefixStreamByName    = byte(0x06)
	prefixStreamEntry     = byte(0x07)
	prefixConsumerOffset  = byte(0x08)
	keyStreamIDCounter    = byte(0x09) // single key, big-endian uint64 counter
)

// Options configures the BadgerDB-backed repository.
type Options struct {
	// Dir is the directory badger stores its files in. Required unless
	// InMemory is set.
	Dir string
	// InMemory runs badger with no on-disk footprint; data does not
	// survive process restart. Used in tests.
	InMemory bool
	// SyncWrites forces an fsync on every commit. Slower, more durable.
	SyncWrites bool
}

// Repository is a BadgerDB-backed repository.Repository.
type Repository struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger-backed repository.
func Open(opts Options) (*Repository, error) {
	bo := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bo = bo.WithInMemory(true)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites).WithLogger(nil)

	db, err := badger.Open(bo)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "open badger repository at %q", opts.Dir)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// transaction adapts *badger.Txn to repository.Transaction.
type transaction struct {
	txn  *badger.Txn
	done bool
}

func (r *Repository) Begin(ctx context.Context) (repository.Transaction, error) {
	return &transaction{txn: r.db.NewTransaction(true)}, nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return payload.NewError(payload.KindInvalidState, "transaction already closed")
	}
	t.done = true
	if err := t.txn.Commit(); err != nil {
		if err == badger.ErrConflict {
			return payload.WrapError(payload.KindBusy, err, "commit conflict")
		}
		return payload.WrapError(payload.KindIOError, err, "commit transaction")
	}
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}

func asTxn(tx repository.Transaction) (*badger.Txn, error) {
	t, ok := tx.(*transaction)
	if !ok {
		return nil, payload.NewError(payload.KindInvalidArgument, "transaction not from badgerrepo")
	}
	if t.done {
		return nil, payload.NewError(payload.KindInvalidState, "transaction already closed")
	}
	return t.txn, nil
}

// ---------------------------------------------------------------------
// Key encoding
// ---------------------------------------------------------------------

func payloadKey(id payload.ID) []byte {
	return append([]byte{prefixPayload}, id[:]...)
}

func metadataKey(id payload.ID) []byte {
	return append([]byte{prefixMetadata}, id[:]...)
}

func lineageByParentKey(parent, child payload.ID) []byte {
	key := make([]byte, 0, 1+16+1+16)
	key = append(key, prefixLineageByParent)
	key = append(key, parent[:]...)
	key = append(key, 0x00)
	key = append(key, child[:]...)
	return key
}

func lineageByParentPrefix(parent payload.ID) []byte {
	key := make([]byte, 0, 1+16+1)
	key = append(key, prefixLineageByParent)
	key = append(key, parent[:]...)
	key = append(key, 0x00)
	return key
}

func lineageByChildKey(child, parent payload.ID) []byte {
	key := make([]byte, 0, 1+16+1+16)
	key = append(key, prefixLineageByChild)
	key = append(key, child[:]...)
	key = append(key, 0x00)
	key = append(key, parent[:]...)
	return key
}

func lineageByChildPrefix(child payload.ID) []byte {
	key := make([]byte, 0, 1+16+1)
	key = append(key, prefixLineageByChild)
	key = append(key, child[:]...)
	key = append(key, 0x00)
	return key
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func streamKey(id uint64) []byte {
	return append([]byte{prefixStream}, encodeUint64(id)...)
}

func streamNameKey(namespace, name string) []byte {
	key := make([]byte, 0, 1+len(namespace)+1+len(name))
	key = append(key, prefixStreamByName)
	key = append(key, []byte(namespace)...)
	key = append(key, 0x00)
	key = append(key, []byte(name)...)
	return key
}

func streamEntryKey(streamID, offset uint64) []byte {
	key := make([]byte, 0, 1+8+8)
	key = append(key, prefixStreamEntry)
	key = append(key, encodeUint64(streamID)...)
	key = append(key, encodeUint64(offset)...)
	return key
}

func streamEntryPrefix(streamID uint64) []byte {
	key := make([]byte, 0, 1+8)
	key = append(key, prefixStreamEntry)
	key = append(key, encodeUint64(streamID)...)
	return key
}

func consumerOffsetKey(streamID uint64, group string) []byte {
	key := make([]byte, 0, 1+8+len(group))
	key = append(key, prefixConsumerOffset)
	key = append(key, encodeUint64(streamID)...)
	key = append(key, []byte(group)...)
	return key
}

func consumerOffsetPrefix(streamID uint64) []byte {
	key := make([]byte, 0, 1+8)
	key = append(key, prefixConsumerOffset)
	key = append(key, encodeUint64(streamID)...)
	return key
}

// ---------------------------------------------------------------------
// Payload lifecycle
// ---------------------------------------------------------------------

func (r *Repository) InsertPayload(ctx context.Context, tx repository.Transaction, rec payload.Record) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	key := payloadKey(rec.ID)
	if _, err := txn.Get(key); err == nil {
		return payload.WrapError(payload.KindAlreadyExists, nil, "payload %s already exists", rec.ID)
	} else if err != badger.ErrKeyNotFound {
		return payload.WrapError(payload.KindIOError, err, "check existing payload %s", rec.ID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode payload %s", rec.ID)
	}
	if err := txn.Set(key, data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) GetPayload(ctx context.Context, tx repository.Transaction, id payload.ID) (payload.Record, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return payload.Record{}, err
	}
	item, err := txn.Get(payloadKey(id))
	if err == badger.ErrKeyNotFound {
		return payload.Record{}, payload.WrapError(payload.KindNotFound, nil, "payload %s not found", id)
	}
	if err != nil {
		return payload.Record{}, payload.WrapError(payload.KindIOError, err, "get payload %s", id)
	}
	var rec payload.Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return payload.Record{}, payload.WrapError(payload.KindCorruption, err, "decode payload %s", id)
	}
	return rec, nil
}

func (r *Repository) UpdatePayload(ctx context.Context, tx repository.Transaction, rec payload.Record) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	if _, err := txn.Get(payloadKey(rec.ID)); err == badger.ErrKeyNotFound {
		return payload.WrapError(payload.KindNotFound, nil, "payload %s not found", rec.ID)
	} else if err != nil {
		return payload.WrapError(payload.KindIOError, err, "get payload %s", rec.ID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode payload %s", rec.ID)
	}
	if err := txn.Set(payloadKey(rec.ID), data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) DeletePayload(ctx context.Context, tx repository.Transaction, id payload.ID) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	if _, err := txn.Get(payloadKey(id)); err == badger.ErrKeyNotFound {
		return payload.WrapError(payload.KindNotFound, nil, "payload %s not found", id)
	} else if err != nil {
		return payload.WrapError(payload.KindIOError, err, "get payload %s", id)
	}
	if err := txn.Delete(payloadKey(id)); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) ListPayloads(ctx context.Context, tx repository.Transaction, filter repository.Filter) ([]payload.Record, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return nil, err
	}
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []payload.Record
	prefix := []byte{prefixPayload}
	skipped := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec payload.Record
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			continue
		}
		if !matches(rec, filter) {
			continue
		}
		if filter.Offset > 0 && skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
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

// ---------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------

func (r *Repository) UpsertMetadata(ctx context.Context, tx repository.Transaction, rec repository.MetadataRecord) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode metadata %s", rec.ID)
	}
	if err := txn.Set(metadataKey(rec.ID), data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) GetMetadata(ctx context.Context, tx repository.Transaction, id payload.ID) (repository.MetadataRecord, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return repository.MetadataRecord{}, err
	}
	item, err := txn.Get(metadataKey(id))
	if err == badger.ErrKeyNotFound {
		return repository.MetadataRecord{}, payload.WrapError(payload.KindNotFound, nil, "metadata for %s not found", id)
	}
	if err != nil {
		return repository.MetadataRecord{}, payload.WrapError(payload.KindIOError, err, "get metadata %s", id)
	}
	var rec repository.MetadataRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return repository.MetadataRecord{}, payload.WrapError(payload.KindCorruption, err, "decode metadata %s", id)
	}
	return rec, nil
}

// ---------------------------------------------------------------------
// Lineage
// ---------------------------------------------------------------------

func (r *Repository) InsertLineage(ctx context.Context, tx repository.Transaction, edge repository.LineageEdge) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(edge)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode lineage edge")
	}
	if err := txn.Set(lineageByParentKey(edge.ParentID, edge.ChildID), data); err != nil {
		return translateSetErr(err)
	}
	if err := txn.Set(lineageByChildKey(edge.ChildID, edge.ParentID), data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) GetParents(ctx context.Context, tx repository.Transaction, id payload.ID) ([]repository.LineageEdge, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return nil, err
	}
	return scanLineage(txn, lineageByChildPrefix(id))
}

func (r *Repository) GetChildren(ctx context.Context, tx repository.Transaction, id payload.ID) ([]repository.LineageEdge, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return nil, err
	}
	return scanLineage(txn, lineageByParentPrefix(id))
}

func scanLineage(txn *badger.Txn, prefix []byte) ([]repository.LineageEdge, error) {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []repository.LineageEdge
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var edge repository.LineageEdge
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &edge)
		})
		if err != nil {
			continue
		}
		out = append(out, edge)
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------

func (r *Repository) CreateStream(ctx context.Context, tx repository.Transaction, rec repository.StreamRecord) (repository.StreamRecord, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	nameKey := streamNameKey(rec.Namespace, rec.Name)
	if _, err := txn.Get(nameKey); err == nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindAlreadyExists, nil, "stream %s/%s already exists", rec.Namespace, rec.Name)
	} else if err != badger.ErrKeyNotFound {
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "check existing stream %s/%s", rec.Namespace, rec.Name)
	}

	var next uint64
	if item, err := txn.Get([]byte{keyStreamIDCounter}); err == nil {
		_ = item.Value(func(val []byte) error {
			next = decodeUint64(val)
			return nil
		})
	} else if err != badger.ErrKeyNotFound {
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "read stream id counter")
	}
	next++
	if err := txn.Set([]byte{keyStreamIDCounter}, encodeUint64(next)); err != nil {
		return repository.StreamRecord{}, translateSetErr(err)
	}
	rec.ID = next

	data, err := json.Marshal(rec)
	if err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindInternal, err, "encode stream %s/%s", rec.Namespace, rec.Name)
	}
	if err := txn.Set(streamKey(rec.ID), data); err != nil {
		return repository.StreamRecord{}, translateSetErr(err)
	}
	if err := txn.Set(nameKey, encodeUint64(rec.ID)); err != nil {
		return repository.StreamRecord{}, translateSetErr(err)
	}
	return rec, nil
}

func (r *Repository) GetStream(ctx context.Context, tx repository.Transaction, id uint64) (repository.StreamRecord, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	return getStreamByKey(txn, streamKey(id), "stream %d not found", id)
}

func (r *Repository) GetStreamByName(ctx context.Context, tx repository.Transaction, namespace, name string) (repository.StreamRecord, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	item, err := txn.Get(streamNameKey(namespace, name))
	if err == badger.ErrKeyNotFound {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, "stream %s/%s not found", namespace, name)
	}
	if err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "get stream %s/%s", namespace, name)
	}
	var id uint64
	if err := item.Value(func(val []byte) error { id = decodeUint64(val); return nil }); err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindCorruption, err, "decode stream id for %s/%s", namespace, name)
	}
	return getStreamByKey(txn, streamKey(id), "stream %s/%s not found", namespace, name)
}

func getStreamByKey(txn *badger.Txn, key []byte, notFoundMsg string, args ...any) (repository.StreamRecord, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, notFoundMsg, args...)
	}
	if err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "get stream")
	}
	var rec repository.StreamRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindCorruption, err, "decode stream")
	}
	return rec, nil
}

func (r *Repository) UpdateStream(ctx context.Context, tx repository.Transaction, rec repository.StreamRecord) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	if _, err := txn.Get(streamKey(rec.ID)); err == badger.ErrKeyNotFound {
		return payload.WrapError(payload.KindNotFound, nil, "stream %d not found", rec.ID)
	} else if err != nil {
		return payload.WrapError(payload.KindIOError, err, "get stream %d", rec.ID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode stream %d", rec.ID)
	}
	if err := txn.Set(streamKey(rec.ID), data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

// DeleteStream removes rec's entries and consumer offsets before the
// stream row and its name index, cascading the same way sqlrepo's
// explicit multi-statement delete does.
func (r *Repository) DeleteStream(ctx context.Context, tx repository.Transaction, id uint64) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	rec, err := getStreamByKey(txn, streamKey(id), "stream %d not found", id)
	if err != nil {
		return err
	}

	if err := deleteByPrefix(txn, streamEntryPrefix(id)); err != nil {
		return err
	}
	if err := deleteByPrefix(txn, consumerOffsetPrefix(id)); err != nil {
		return err
	}
	if err := txn.Delete(streamNameKey(rec.Namespace, rec.Name)); err != nil {
		return translateSetErr(err)
	}
	if err := txn.Delete(streamKey(id)); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func deleteByPrefix(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, append([]byte(nil), it.Item().Key()...))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return translateSetErr(err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// Stream entries
// ---------------------------------------------------------------------

func (r *Repository) AppendStreamEntry(ctx context.Context, tx repository.Transaction, entry repository.StreamEntryRecord) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode stream entry")
	}
	if err := txn.Set(streamEntryKey(entry.StreamID, entry.Offset), data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) ListStreamEntries(ctx context.Context, tx repository.Transaction, streamID uint64, fromOffset uint64, limit int) ([]repository.StreamEntryRecord, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return nil, err
	}
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []repository.StreamEntryRecord
	prefix := streamEntryPrefix(streamID)
	seek := streamEntryKey(streamID, fromOffset)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		var e repository.StreamEntryRecord
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
		if err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode stream entry")
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Repository) DeleteStreamEntriesBefore(ctx context.Context, tx repository.Transaction, streamID uint64, offset uint64) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	prefix := streamEntryPrefix(streamID)
	var toDelete [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.Key()
		entryOffset := decodeUint64(key[len(key)-8:])
		if entryOffset >= offset {
			break
		}
		toDelete = append(toDelete, append([]byte(nil), key...))
	}
	it.Close()
	for _, k := range toDelete {
		if err := txn.Delete(k); err != nil {
			return translateSetErr(err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// Stream consumer offsets
// ---------------------------------------------------------------------

func (r *Repository) UpsertStreamConsumerOffset(ctx context.Context, tx repository.Transaction, rec repository.StreamConsumerOffsetRecord) error {
	txn, err := asTxn(tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return payload.WrapError(payload.KindInternal, err, "encode consumer offset")
	}
	if err := txn.Set(consumerOffsetKey(rec.StreamID, rec.ConsumerGroup), data); err != nil {
		return translateSetErr(err)
	}
	return nil
}

func (r *Repository) GetStreamConsumerOffset(ctx context.Context, tx repository.Transaction, streamID uint64, consumerGroup string) (repository.StreamConsumerOffsetRecord, bool, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return repository.StreamConsumerOffsetRecord{}, false, err
	}
	item, err := txn.Get(consumerOffsetKey(streamID, consumerGroup))
	if err == badger.ErrKeyNotFound {
		return repository.StreamConsumerOffsetRecord{}, false, nil
	}
	if err != nil {
		return repository.StreamConsumerOffsetRecord{}, false, payload.WrapError(payload.KindIOError, err, "get consumer offset")
	}
	var rec repository.StreamConsumerOffsetRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return repository.StreamConsumerOffsetRecord{}, false, payload.WrapError(payload.KindCorruption, err, "decode consumer offset")
	}
	return rec, true, nil
}

func (r *Repository) ListStreamConsumerOffsets(ctx context.Context, tx repository.Transaction, streamID uint64) ([]repository.StreamConsumerOffsetRecord, error) {
	txn, err := asTxn(tx)
	if err != nil {
		return nil, err
	}
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []repository.StreamConsumerOffsetRecord
	prefix := consumerOffsetPrefix(streamID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec repository.StreamConsumerOffsetRecord
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode consumer offset")
		}
		out = append(out, rec)
	}
	return out, nil
}

func translateSetErr(err error) error {
	if err == nil {
		return nil
	}
	if err == badger.ErrTxnTooBig {
		return payload.WrapError(payload.KindResourceExhausted, err, "transaction too large")
	}
	return payload.WrapError(payload.KindIOError, err, "write failed")
}

var _ repository.Repository = (*Repository)(nil)
