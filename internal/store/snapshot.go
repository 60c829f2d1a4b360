package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zianansar/proposal-writer-sub001/internal/revision"
)

// Snapshot is the portable full-fidelity export of the store: the thing
// an archive encrypts. All fields ride through JSON, so fields added in
// later schema versions decode to their zero value when reading an
// older producer's snapshot and get defaulted during apply.
type Snapshot struct {
	SchemaVersion int            `json:"schema_version"`
	ExportedAt    time.Time      `json:"exported_at"`
	Jobs          []Job          `json:"jobs"`
	Proposals     []Proposal     `json:"proposals"`
	Revisions     []RevisionBlob `json:"revisions"`
}

// Snapshot exports every archived table inside one read transaction so
// the result is internally consistent even while the daemon serves
// other reads.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot begin: %w", err)
	}
	defer tx.Rollback()

	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		ExportedAt:    time.Now().UTC(),
		Jobs:          []Job{},
		Proposals:     []Proposal{},
		Revisions:     []RevisionBlob{},
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, url, title, description, score, status, created_at, updated_at
		FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot jobs: %w", err)
	}
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.URL, &j.Title, &j.Description, &j.Score, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: snapshot scan job: %w", err)
		}
		snap.Jobs = append(snap.Jobs, j)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT id, job_id, fingerprint, content, strategy, created_at, updated_at
		FROM proposals ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot proposals: %w", err)
	}
	for rows.Next() {
		var p Proposal
		var jobID *string
		if err := rows.Scan(&p.ID, &jobID, &p.Fingerprint, &p.Content, &p.Strategy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: snapshot scan proposal: %w", err)
		}
		if jobID != nil {
			p.JobID = *jobID
		}
		snap.Proposals = append(snap.Proposals, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT proposal_id, payload FROM proposal_revisions ORDER BY proposal_id`)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot revisions: %w", err)
	}
	for rows.Next() {
		var rb RevisionBlob
		if err := rows.Scan(&rb.ProposalID, &rb.Payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: snapshot scan revisions: %w", err)
		}
		snap.Revisions = append(snap.Revisions, rb)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Counts tallies the snapshot's record types. Revision count is the
// number of individual revision records across all blobs, which
// requires decompressing each one.
func (snap *Snapshot) Counts() (Counts, error) {
	c := Counts{Jobs: len(snap.Jobs), Proposals: len(snap.Proposals)}
	for _, rb := range snap.Revisions {
		recs, err := revision.Decompress(rb.Payload)
		if err != nil {
			return c, fmt.Errorf("store: count revisions for %s: %w", rb.ProposalID, err)
		}
		c.Revisions += len(recs)
	}
	return c, nil
}
