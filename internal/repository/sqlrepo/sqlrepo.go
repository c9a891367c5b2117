package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// Repository is a database/sql-backed repository.Repository, usable with
// either sqlite or postgres via Dialect.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens dsn under the given dialect and applies the idempotent
// migration sequence.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "open sql database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, payload.WrapError(payload.KindIOError, err, "ping sql database")
	}
	if dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, payload.WrapError(payload.KindIOError, err, "enable foreign keys")
		}
	}
	if err := applyMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, payload.WrapError(payload.KindIOError, err, "apply migration")
	}
	return &Repository{db: db, dialect: dialect}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type transaction struct {
	tx   *sql.Tx
	done bool
}

func (r *Repository) Begin(ctx context.Context) (repository.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "begin transaction")
	}
	return &transaction{tx: tx}, nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return payload.NewError(payload.KindInvalidState, "transaction already closed")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return payload.WrapError(payload.KindBusy, err, "commit transaction")
	}
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return payload.WrapError(payload.KindIOError, err, "rollback transaction")
	}
	return nil
}

func asTx(tx repository.Transaction) (*sql.Tx, error) {
	t, ok := tx.(*transaction)
	if !ok {
		return nil, payload.NewError(payload.KindInvalidArgument, "transaction not from sqlrepo")
	}
	if t.done {
		return nil, payload.NewError(payload.KindInvalidState, "transaction already closed")
	}
	return t.tx, nil
}

// ---------------------------------------------------------------------
// Payload lifecycle
// ---------------------------------------------------------------------

func (r *Repository) InsertPayload(ctx context.Context, tx repository.Transaction, rec payload.Record) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	loc, attrs, err := encodeAux(rec)
	if err != nil {
		return err
	}
	q := r.dialect.rewrite(`INSERT INTO payloads
		(id, name, group_id, size_bytes, tier, state, version, location,
		 created_at_ms, last_accessed_at_ms, last_spilled_at_ms, access_count,
		 checksum, require_durability, pinned, spill_pending, spill_attempts,
		 last_spill_error, attributes)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	_, err = sqlTx.ExecContext(ctx, q,
		rec.ID.String(), rec.Name, rec.GroupID, rec.Size, uint8(rec.Tier), uint8(rec.State), rec.Version, loc,
		millis(rec.CreatedAt), millis(rec.LastAccessedAt), millis(rec.LastSpilledAt), rec.AccessCount,
		rec.Checksum, rec.RequireDurability, rec.Pinned, rec.SpillPending, rec.SpillAttempts,
		rec.LastSpillError, attrs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return payload.WrapError(payload.KindAlreadyExists, err, "payload %s already exists", rec.ID)
		}
		return payload.WrapError(payload.KindIOError, err, "insert payload %s", rec.ID)
	}
	return nil
}

func (r *Repository) GetPayload(ctx context.Context, tx repository.Transaction, id payload.ID) (payload.Record, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return payload.Record{}, err
	}
	q := r.dialect.rewrite(`SELECT id, name, group_id, size_bytes, tier, state, version, location,
		created_at_ms, last_accessed_at_ms, last_spilled_at_ms, access_count,
		checksum, require_durability, pinned, spill_pending, spill_attempts,
		last_spill_error, attributes FROM payloads WHERE id = ?`)
	row := sqlTx.QueryRowContext(ctx, q, id.String())
	rec, err := scanPayload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payload.Record{}, payload.WrapError(payload.KindNotFound, nil, "payload %s not found", id)
	}
	if err != nil {
		return payload.Record{}, payload.WrapError(payload.KindIOError, err, "get payload %s", id)
	}
	return rec, nil
}

func (r *Repository) UpdatePayload(ctx context.Context, tx repository.Transaction, rec payload.Record) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	loc, attrs, err := encodeAux(rec)
	if err != nil {
		return err
	}
	q := r.dialect.rewrite(`UPDATE payloads SET name=?, group_id=?, size_bytes=?, tier=?, state=?, version=?,
		location=?, created_at_ms=?, last_accessed_at_ms=?, last_spilled_at_ms=?, access_count=?,
		checksum=?, require_durability=?, pinned=?, spill_pending=?, spill_attempts=?,
		last_spill_error=?, attributes=? WHERE id=?`)
	res, err := sqlTx.ExecContext(ctx, q,
		rec.Name, rec.GroupID, rec.Size, uint8(rec.Tier), uint8(rec.State), rec.Version, loc,
		millis(rec.CreatedAt), millis(rec.LastAccessedAt), millis(rec.LastSpilledAt), rec.AccessCount,
		rec.Checksum, rec.RequireDurability, rec.Pinned, rec.SpillPending, rec.SpillAttempts,
		rec.LastSpillError, attrs, rec.ID.String(),
	)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "update payload %s", rec.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payload.WrapError(payload.KindNotFound, nil, "payload %s not found", rec.ID)
	}
	return nil
}

func (r *Repository) DeletePayload(ctx context.Context, tx repository.Transaction, id payload.ID) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	res, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(`DELETE FROM payloads WHERE id=?`), id.String())
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "delete payload %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payload.WrapError(payload.KindNotFound, nil, "payload %s not found", id)
	}
	return nil
}

func (r *Repository) ListPayloads(ctx context.Context, tx repository.Transaction, filter repository.Filter) ([]payload.Record, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, name, group_id, size_bytes, tier, state, version, location,
		created_at_ms, last_accessed_at_ms, last_spilled_at_ms, access_count,
		checksum, require_durability, pinned, spill_pending, spill_attempts,
		last_spill_error, attributes FROM payloads WHERE 1=1`
	var args []any
	if filter.Tier != nil {
		q += " AND tier = ?"
		args = append(args, uint8(*filter.Tier))
	}
	if filter.State != nil {
		q += " AND state = ?"
		args = append(args, uint8(*filter.State))
	}
	if filter.GroupID != nil {
		q += " AND group_id = ?"
		args = append(args, *filter.GroupID)
	}
	if filter.Pinned != nil {
		q += " AND pinned = ?"
		args = append(args, *filter.Pinned)
	}
	q += " ORDER BY id"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := sqlTx.QueryContext(ctx, r.dialect.rewrite(q), args...)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "list payloads")
	}
	defer rows.Close()

	var out []payload.Record
	for rows.Next() {
		rec, err := scanPayload(rows)
		if err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode payload row")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------

func (r *Repository) UpsertMetadata(ctx context.Context, tx repository.Transaction, rec repository.MetadataRecord) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	// Portable upsert: try update, insert if no row affected. Avoids
	// relying on dialect-specific ON CONFLICT syntax differences.
	res, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`UPDATE metadata SET json=?, schema=?, updated_at_ms=? WHERE id=?`),
		rec.JSON, rec.Schema, rec.UpdatedAt, rec.ID.String())
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "update metadata %s", rec.ID)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`INSERT INTO metadata (id, json, schema, updated_at_ms) VALUES (?,?,?,?)`),
		rec.ID.String(), rec.JSON, rec.Schema, rec.UpdatedAt)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "insert metadata %s", rec.ID)
	}
	return nil
}

func (r *Repository) GetMetadata(ctx context.Context, tx repository.Transaction, id payload.ID) (repository.MetadataRecord, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return repository.MetadataRecord{}, err
	}
	row := sqlTx.QueryRowContext(ctx, r.dialect.rewrite(
		`SELECT id, json, schema, updated_at_ms FROM metadata WHERE id=?`), id.String())
	var rec repository.MetadataRecord
	var idStr string
	if err := row.Scan(&idStr, &rec.JSON, &rec.Schema, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.MetadataRecord{}, payload.WrapError(payload.KindNotFound, nil, "metadata for %s not found", id)
		}
		return repository.MetadataRecord{}, payload.WrapError(payload.KindIOError, err, "get metadata %s", id)
	}
	rec.ID = id
	return rec, nil
}

// ---------------------------------------------------------------------
// Lineage
// ---------------------------------------------------------------------

func (r *Repository) InsertLineage(ctx context.Context, tx repository.Transaction, edge repository.LineageEdge) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`INSERT INTO lineage (parent_id, child_id, operation, role, parameters, created_at_ms) VALUES (?,?,?,?,?,?)`),
		edge.ParentID.String(), edge.ChildID.String(), edge.Operation, edge.Role, edge.Parameters, edge.CreatedAt)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "insert lineage edge")
	}
	return nil
}

func (r *Repository) GetParents(ctx context.Context, tx repository.Transaction, id payload.ID) ([]repository.LineageEdge, error) {
	return r.queryLineage(ctx, tx, `child_id`, id)
}

func (r *Repository) GetChildren(ctx context.Context, tx repository.Transaction, id payload.ID) ([]repository.LineageEdge, error) {
	return r.queryLineage(ctx, tx, `parent_id`, id)
}

func (r *Repository) queryLineage(ctx context.Context, tx repository.Transaction, col string, id payload.ID) ([]repository.LineageEdge, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlTx.QueryContext(ctx, r.dialect.rewrite(
		`SELECT parent_id, child_id, operation, role, parameters, created_at_ms FROM lineage WHERE `+col+` = ?`), id.String())
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "query lineage")
	}
	defer rows.Close()

	var out []repository.LineageEdge
	for rows.Next() {
		var e repository.LineageEdge
		var parentStr, childStr string
		if err := rows.Scan(&parentStr, &childStr, &e.Operation, &e.Role, &e.Parameters, &e.CreatedAt); err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode lineage row")
		}
		if e.ParentID, err = payload.ParseID(parentStr); err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode parent id")
		}
		if e.ChildID, err = payload.ParseID(childStr); err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode child id")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------

func (r *Repository) CreateStream(ctx context.Context, tx repository.Transaction, rec repository.StreamRecord) (repository.StreamRecord, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	row := sqlTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM streams`)
	var maxID uint64
	if err := row.Scan(&maxID); err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "allocate stream id")
	}
	rec.ID = maxID + 1

	q := r.dialect.rewrite(`INSERT INTO streams
		(id, namespace, name, retention_max_entries, retention_max_age_sec, next_offset, created_at_ms)
		VALUES (?,?,?,?,?,?,?)`)
	_, err = sqlTx.ExecContext(ctx, q, rec.ID, rec.Namespace, rec.Name,
		rec.RetentionMaxEntries, rec.RetentionMaxAgeSec, rec.NextOffset, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.StreamRecord{}, payload.WrapError(payload.KindAlreadyExists, err, "stream %s/%s already exists", rec.Namespace, rec.Name)
		}
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "insert stream %s/%s", rec.Namespace, rec.Name)
	}
	return rec, nil
}

func (r *Repository) GetStream(ctx context.Context, tx repository.Transaction, id uint64) (repository.StreamRecord, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	row := sqlTx.QueryRowContext(ctx, r.dialect.rewrite(
		`SELECT id, namespace, name, retention_max_entries, retention_max_age_sec, next_offset, created_at_ms
		 FROM streams WHERE id = ?`), id)
	return scanStream(row)
}

func (r *Repository) GetStreamByName(ctx context.Context, tx repository.Transaction, namespace, name string) (repository.StreamRecord, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return repository.StreamRecord{}, err
	}
	row := sqlTx.QueryRowContext(ctx, r.dialect.rewrite(
		`SELECT id, namespace, name, retention_max_entries, retention_max_age_sec, next_offset, created_at_ms
		 FROM streams WHERE namespace = ? AND name = ?`), namespace, name)
	return scanStream(row)
}

func scanStream(row rowScanner) (repository.StreamRecord, error) {
	var rec repository.StreamRecord
	err := row.Scan(&rec.ID, &rec.Namespace, &rec.Name, &rec.RetentionMaxEntries, &rec.RetentionMaxAgeSec, &rec.NextOffset, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.StreamRecord{}, payload.WrapError(payload.KindNotFound, nil, "stream not found")
	}
	if err != nil {
		return repository.StreamRecord{}, payload.WrapError(payload.KindIOError, err, "get stream")
	}
	return rec, nil
}

func (r *Repository) UpdateStream(ctx context.Context, tx repository.Transaction, rec repository.StreamRecord) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	res, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`UPDATE streams SET retention_max_entries=?, retention_max_age_sec=?, next_offset=? WHERE id=?`),
		rec.RetentionMaxEntries, rec.RetentionMaxAgeSec, rec.NextOffset, rec.ID)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "update stream %d", rec.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payload.WrapError(payload.KindNotFound, nil, "stream %d not found", rec.ID)
	}
	return nil
}

// DeleteStream removes rec's entries and consumer offsets before the
// stream row itself so a crash mid-delete can never leave either
// pointing at a stream that no longer exists (streams.id also carries
// an ON DELETE CASCADE for defense in depth on drivers that enforce
// foreign keys).
func (r *Repository) DeleteStream(ctx context.Context, tx repository.Transaction, id uint64) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	if _, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(`DELETE FROM stream_entries WHERE stream_id=?`), id); err != nil {
		return payload.WrapError(payload.KindIOError, err, "delete stream entries for %d", id)
	}
	if _, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(`DELETE FROM stream_consumer_offsets WHERE stream_id=?`), id); err != nil {
		return payload.WrapError(payload.KindIOError, err, "delete stream consumer offsets for %d", id)
	}
	res, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(`DELETE FROM streams WHERE id=?`), id)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "delete stream %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payload.WrapError(payload.KindNotFound, nil, "stream %d not found", id)
	}
	return nil
}

// ---------------------------------------------------------------------
// Stream entries
// ---------------------------------------------------------------------

func (r *Repository) AppendStreamEntry(ctx context.Context, tx repository.Transaction, entry repository.StreamEntryRecord) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	q := r.dialect.rewrite(`INSERT INTO stream_entries
		(stream_id, offset_value, payload_id, event_time_ms, append_time_ms, tags)
		VALUES (?,?,?,?,?,?)`)
	_, err = sqlTx.ExecContext(ctx, q, entry.StreamID, entry.Offset, entry.PayloadID.String(), entry.EventTime, entry.AppendTime, entry.Tags)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "append stream entry to %d", entry.StreamID)
	}
	return nil
}

func (r *Repository) ListStreamEntries(ctx context.Context, tx repository.Transaction, streamID uint64, fromOffset uint64, limit int) ([]repository.StreamEntryRecord, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT stream_id, offset_value, payload_id, event_time_ms, append_time_ms, tags
		FROM stream_entries WHERE stream_id = ? AND offset_value >= ? ORDER BY offset_value`
	args := []any{streamID, fromOffset}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := sqlTx.QueryContext(ctx, r.dialect.rewrite(q), args...)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "list stream entries for %d", streamID)
	}
	defer rows.Close()

	var out []repository.StreamEntryRecord
	for rows.Next() {
		var e repository.StreamEntryRecord
		var payloadIDStr string
		if err := rows.Scan(&e.StreamID, &e.Offset, &payloadIDStr, &e.EventTime, &e.AppendTime, &e.Tags); err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode stream entry row")
		}
		if e.PayloadID, err = payload.ParseID(payloadIDStr); err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode stream entry payload id")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteStreamEntriesBefore(ctx context.Context, tx repository.Transaction, streamID uint64, offset uint64) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`DELETE FROM stream_entries WHERE stream_id = ? AND offset_value < ?`), streamID, offset)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "trim stream entries for %d", streamID)
	}
	return nil
}

// ---------------------------------------------------------------------
// Stream consumer offsets
// ---------------------------------------------------------------------

func (r *Repository) UpsertStreamConsumerOffset(ctx context.Context, tx repository.Transaction, rec repository.StreamConsumerOffsetRecord) error {
	sqlTx, err := asTx(tx)
	if err != nil {
		return err
	}
	res, err := sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`UPDATE stream_consumer_offsets SET offset_value=?, updated_at_ms=? WHERE stream_id=? AND consumer_group=?`),
		rec.Offset, rec.UpdatedAt, rec.StreamID, rec.ConsumerGroup)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "update consumer offset")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = sqlTx.ExecContext(ctx, r.dialect.rewrite(
		`INSERT INTO stream_consumer_offsets (stream_id, consumer_group, offset_value, updated_at_ms) VALUES (?,?,?,?)`),
		rec.StreamID, rec.ConsumerGroup, rec.Offset, rec.UpdatedAt)
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "insert consumer offset")
	}
	return nil
}

func (r *Repository) GetStreamConsumerOffset(ctx context.Context, tx repository.Transaction, streamID uint64, consumerGroup string) (repository.StreamConsumerOffsetRecord, bool, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return repository.StreamConsumerOffsetRecord{}, false, err
	}
	row := sqlTx.QueryRowContext(ctx, r.dialect.rewrite(
		`SELECT stream_id, consumer_group, offset_value, updated_at_ms FROM stream_consumer_offsets WHERE stream_id=? AND consumer_group=?`),
		streamID, consumerGroup)
	var rec repository.StreamConsumerOffsetRecord
	if err := row.Scan(&rec.StreamID, &rec.ConsumerGroup, &rec.Offset, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.StreamConsumerOffsetRecord{}, false, nil
		}
		return repository.StreamConsumerOffsetRecord{}, false, payload.WrapError(payload.KindIOError, err, "get consumer offset")
	}
	return rec, true, nil
}

func (r *Repository) ListStreamConsumerOffsets(ctx context.Context, tx repository.Transaction, streamID uint64) ([]repository.StreamConsumerOffsetRecord, error) {
	sqlTx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlTx.QueryContext(ctx, r.dialect.rewrite(
		`SELECT stream_id, consumer_group, offset_value, updated_at_ms FROM stream_consumer_offsets WHERE stream_id=?`), streamID)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "list consumer offsets for %d", streamID)
	}
	defer rows.Close()

	var out []repository.StreamConsumerOffsetRecord
	for rows.Next() {
		var rec repository.StreamConsumerOffsetRecord
		if err := rows.Scan(&rec.StreamID, &rec.ConsumerGroup, &rec.Offset, &rec.UpdatedAt); err != nil {
			return nil, payload.WrapError(payload.KindCorruption, err, "decode consumer offset row")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Encoding helpers
// ---------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayload(row rowScanner) (payload.Record, error) {
	var rec payload.Record
	var idStr, locJSON, attrsJSON string
	var tier, state uint8
	var createdMs, accessedMs, spilledMs int64

	err := row.Scan(&idStr, &rec.Name, &rec.GroupID, &rec.Size, &tier, &state, &rec.Version, &locJSON,
		&createdMs, &accessedMs, &spilledMs, &rec.AccessCount,
		&rec.Checksum, &rec.RequireDurability, &rec.Pinned, &rec.SpillPending, &rec.SpillAttempts,
		&rec.LastSpillError, &attrsJSON)
	if err != nil {
		return payload.Record{}, err
	}

	id, err := payload.ParseID(idStr)
	if err != nil {
		return payload.Record{}, err
	}
	rec.ID = id
	rec.Tier = payload.Tier(tier)
	rec.State = payload.State(state)
	rec.CreatedAt = unmillis(createdMs)
	rec.LastAccessedAt = unmillis(accessedMs)
	rec.LastSpilledAt = unmillis(spilledMs)

	if locJSON != "" {
		if err := json.Unmarshal([]byte(locJSON), &rec.Location); err != nil {
			return payload.Record{}, err
		}
	}
	if attrsJSON != "" {
		if err := json.Unmarshal([]byte(attrsJSON), &rec.Attributes); err != nil {
			return payload.Record{}, err
		}
	}
	return rec, nil
}

func encodeAux(rec payload.Record) (locationJSON, attrsJSON string, err error) {
	loc, err := json.Marshal(rec.Location)
	if err != nil {
		return "", "", payload.WrapError(payload.KindInternal, err, "encode location")
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return "", "", payload.WrapError(payload.KindInternal, err, "encode attributes")
	}
	return string(loc), string(attrs), nil
}

func isUniqueViolation(err error) bool {
	// Both drivers surface distinct error types; matching on message
	// substring keeps this dialect-agnostic without importing each
	// driver's specific error type.
	msg := err.Error()
	return containsAny(msg, "UNIQUE constraint", "duplicate key value", "constraint failed")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

var _ repository.Repository = (*Repository)(nil)
