package sqlrepo

import (
	"context"
	"database/sql"
	"time"
)

// migration is one numbered, idempotent step in the schema's evolution.
// Grounded on original_source/internal/db/sql/migrations.hpp's numbered,
// ordered DDL list, tracked here in payload_schema_migrations so Open
// never re-applies a step a prior run already committed.
type migration struct {
	version int
	stmts   []string
}

// migrations returns every schema step, in order, for the given dialect.
func migrations(d Dialect) []migration {
	jsonType := d.jsonType()
	return []migration{
		{
			version: 1,
			stmts: []string{
				`CREATE TABLE IF NOT EXISTS payloads (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					group_id TEXT NOT NULL DEFAULT '',
					size_bytes BIGINT NOT NULL DEFAULT 0,
					tier SMALLINT NOT NULL DEFAULT 0,
					state SMALLINT NOT NULL DEFAULT 0,
					version BIGINT NOT NULL DEFAULT 0,
					location ` + jsonType + `,
					created_at_ms BIGINT NOT NULL DEFAULT 0,
					last_accessed_at_ms BIGINT NOT NULL DEFAULT 0,
					last_spilled_at_ms BIGINT NOT NULL DEFAULT 0,
					access_count BIGINT NOT NULL DEFAULT 0,
					checksum TEXT NOT NULL DEFAULT '',
					require_durability BOOLEAN NOT NULL DEFAULT FALSE,
					pinned BOOLEAN NOT NULL DEFAULT FALSE,
					spill_pending BOOLEAN NOT NULL DEFAULT FALSE,
					spill_attempts INT NOT NULL DEFAULT 0,
					last_spill_error TEXT NOT NULL DEFAULT '',
					attributes ` + jsonType + `
				)`,
				`CREATE INDEX IF NOT EXISTS idx_payloads_tier ON payloads(tier)`,
				`CREATE INDEX IF NOT EXISTS idx_payloads_state ON payloads(state)`,
				`CREATE INDEX IF NOT EXISTS idx_payloads_group ON payloads(group_id)`,
				`CREATE TABLE IF NOT EXISTS metadata (
					id TEXT PRIMARY KEY,
					json ` + jsonType + ` NOT NULL,
					schema TEXT NOT NULL DEFAULT '',
					updated_at_ms BIGINT NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS lineage (
					parent_id TEXT NOT NULL,
					child_id TEXT NOT NULL,
					operation TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL DEFAULT '',
					parameters TEXT NOT NULL DEFAULT '',
					created_at_ms BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (parent_id, child_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_lineage_child ON lineage(child_id)`,
			},
		},
		{
			// Stream state: namespaces/names, their entries, and per
			// consumer-group checkpoints. stream_entries and
			// stream_consumer_offsets cascade-delete with their parent
			// streams row so DeleteStream can never leave either behind.
			version: 2,
			stmts: []string{
				`CREATE TABLE IF NOT EXISTS streams (
					id BIGINT PRIMARY KEY,
					namespace TEXT NOT NULL,
					name TEXT NOT NULL,
					retention_max_entries BIGINT NOT NULL DEFAULT 0,
					retention_max_age_sec BIGINT NOT NULL DEFAULT 0,
					next_offset BIGINT NOT NULL DEFAULT 0,
					created_at_ms BIGINT NOT NULL DEFAULT 0,
					UNIQUE (namespace, name)
				)`,
				`CREATE TABLE IF NOT EXISTS stream_entries (
					stream_id BIGINT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
					offset_value BIGINT NOT NULL,
					payload_id TEXT NOT NULL,
					event_time_ms BIGINT NOT NULL DEFAULT 0,
					append_time_ms BIGINT NOT NULL DEFAULT 0,
					tags TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (stream_id, offset_value)
				)`,
				`CREATE TABLE IF NOT EXISTS stream_consumer_offsets (
					stream_id BIGINT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
					consumer_group TEXT NOT NULL,
					offset_value BIGINT NOT NULL DEFAULT 0,
					updated_at_ms BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (stream_id, consumer_group)
				)`,
			},
		},
	}
}

// applyMigrations runs every migration version not yet recorded in
// payload_schema_migrations, in order, each inside its own transaction
// so a failure partway through a step never leaves it half-applied and
// unrecorded.
func applyMigrations(ctx context.Context, db *sql.DB, d Dialect) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS payload_schema_migrations (
		version INT PRIMARY KEY,
		applied_at_ms BIGINT NOT NULL DEFAULT 0
	)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM payload_schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, m := range migrations(d) {
		if applied[m.version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, d.rewrite(`INSERT INTO payload_schema_migrations (version, applied_at_ms) VALUES (?, ?)`), m.version, millis(time.Now())); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
