// Package store is the live SQLite data store: scraped job postings,
// generated proposals, and per-proposal revision history. Everything
// the backup subsystem archives and restores lives here.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zianansar/proposal-writer-sub001/internal/revision"
)

// SchemaVersion is the structure version of the persisted store. Bump
// it together with a new migration step; archives record the producer's
// value so an importer can refuse what it cannot interpret.
const SchemaVersion = 3

type Job struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"` // natural key
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

type Proposal struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	Fingerprint string `json:"fingerprint"` // natural key, sha256 of content
	Content     string `json:"content"`
	Strategy    string `json:"strategy"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// RevisionBlob is one proposal's compressed revision history as stored.
type RevisionBlob struct {
	ProposalID string `json:"proposal_id"`
	Payload    []byte `json:"payload"`
}

// Counts summarizes the store's major record types.
type Counts struct {
	Jobs      int `json:"jobs"`
	Proposals int `json:"proposals"`
	Revisions int `json:"revisions"`
}

type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the store at path and migrates it to the
// current schema version.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// The import transaction is the single writer; a second connection
	// would only contend for the file lock.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the on-disk location of the database file.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for transactional callers.
func (s *Store) DB() *sql.DB { return s.db }

// Fingerprint computes the natural key for proposal content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (s *Store) InsertJob(ctx context.Context, j *Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = "new"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, url, title, description, score, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.URL, j.Title, j.Description, j.Score, j.Status, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert job: %w", err)
	}
	return nil
}

func (s *Store) InsertProposal(ctx context.Context, p *Proposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Fingerprint == "" {
		p.Fingerprint = Fingerprint(p.Content)
	}
	now := time.Now().Unix()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, job_id, fingerprint, content, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.JobID, p.Fingerprint, p.Content, p.Strategy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert proposal: %w", err)
	}
	return nil
}

// AppendRevisions merges records into the proposal's compressed
// history blob.
func (s *Store) AppendRevisions(ctx context.Context, proposalID string, recs []revision.Record) error {
	var existing []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM proposal_revisions WHERE proposal_id = ?`, proposalID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: read revisions: %w", err)
	}
	merged, err := revision.Merge(existing, recs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proposal_revisions (proposal_id, payload) VALUES (?, ?)
		ON CONFLICT(proposal_id) DO UPDATE SET payload = excluded.payload`,
		proposalID, merged)
	if err != nil {
		return fmt.Errorf("store: write revisions: %w", err)
	}
	return nil
}

// Revisions returns the proposal's full decompressed history, oldest
// first. A proposal with no history returns an empty list.
func (s *Store) Revisions(ctx context.Context, proposalID string) ([]revision.Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM proposal_revisions WHERE proposal_id = ?`, proposalID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []revision.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read revisions: %w", err)
	}
	return revision.Decompress(payload)
}

func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, description, score, status, created_at, updated_at
		FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.URL, &j.Title, &j.Description, &j.Score, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Checkpoint flushes the WAL into the main database file so an
// external file copy sees the complete store.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("store: checkpoint: %w", err)
	}
	return nil
}

// TableCounts reads the current row counts of the three archived tables.
func (s *Store) TableCounts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"jobs", &c.Jobs},
		{"proposals", &c.Proposals},
		{"proposal_revisions", &c.Revisions},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, fmt.Errorf("store: count %s: %w", q.table, err)
		}
	}
	return c, nil
}
