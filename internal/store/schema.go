package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Migrations are applied in order; meta.schema_version records the last
// one applied. Each step must be valid against the previous step's
// schema, never against the current one.
var migrations = []string{
	// v1: core tables.
	`CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		url         TEXT NOT NULL UNIQUE,
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		score       REAL NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS proposals (
		id          TEXT PRIMARY KEY,
		job_id      TEXT REFERENCES jobs(id) ON DELETE CASCADE,
		fingerprint TEXT NOT NULL UNIQUE,
		content     TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);`,

	// v2: compressed per-proposal revision history.
	`CREATE TABLE IF NOT EXISTS proposal_revisions (
		proposal_id TEXT PRIMARY KEY REFERENCES proposals(id) ON DELETE CASCADE,
		payload     BLOB NOT NULL
	);`,

	// v3: job pipeline status and proposal strategy tag. Archives from
	// schema v2 default these on import.
	`ALTER TABLE jobs ADD COLUMN status TEXT NOT NULL DEFAULT 'new';
	ALTER TABLE proposals ADD COLUMN strategy TEXT NOT NULL DEFAULT '';`,
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("store: create meta: %w", err)
	}

	current, err := s.readSchemaVersion()
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("store: database schema v%d is newer than this build (v%d)", current, SchemaVersion)
	}

	for v := current; v < SchemaVersion; v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: migrate begin: %w", err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migrate to v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: migrate commit: %w", err)
		}
	}
	return nil
}

func (s *Store) readSchemaVersion() (int, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("store: bad schema version %q: %w", raw, err)
	}
	return v, nil
}

// CurrentSchemaVersion reports the migrated version of this database.
func (s *Store) CurrentSchemaVersion() (int, error) {
	return s.readSchemaVersion()
}
