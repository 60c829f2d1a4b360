package backup

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

// batchSize bounds progress cadence: one event per batch, never per row.
const batchSize = 100

// apply installs the snapshot inside a single transaction. Any error
// rolls the whole transaction back; partial application is never
// observable from outside.
func (e *Engine) apply(snap *store.Snapshot, mode ImportMode) (*Summary, error) {
	tx, err := e.st.DB().Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var summary *Summary
	switch mode {
	case ReplaceAll:
		summary, err = e.applyReplaceAll(tx, snap)
	case MergeSkipDuplicates:
		summary, err = e.applyMerge(tx, snap)
	default:
		err = fmt.Errorf("unknown import mode %d", mode)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return summary, nil
}

// applyReplaceAll clears the archived tables and installs the
// snapshot's rows wholesale.
func (e *Engine) applyReplaceAll(tx *sql.Tx, snap *store.Snapshot) (*Summary, error) {
	// Children first so foreign keys never dangle mid-transaction.
	for _, table := range []string{"proposal_revisions", "proposals", "jobs"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return nil, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	summary := &Summary{}
	for i, j := range snap.Jobs {
		if err := insertJob(tx, defaultedJob(j)); err != nil {
			return nil, err
		}
		summary.JobsImported++
		e.batchProgress(PhaseJobs, i+1, len(snap.Jobs))
	}
	for i, p := range snap.Proposals {
		if err := insertProposal(tx, defaultedProposal(p)); err != nil {
			return nil, err
		}
		summary.ProposalsImported++
		e.batchProgress(PhaseProposals, i+1, len(snap.Proposals))
	}
	for i, rb := range snap.Revisions {
		if err := insertRevisionBlob(tx, rb.ProposalID, rb.Payload); err != nil {
			return nil, err
		}
		summary.RevisionsImported++
		e.batchProgress(PhaseRevisions, i+1, len(snap.Revisions))
	}
	return summary, nil
}

// applyMerge inserts only rows whose natural key (job URL, proposal
// fingerprint) is absent from the live store. Colliding rows are
// skipped and counted, never overwritten and never an error. Imported
// proposals are re-pointed at the live row for jobs that were skipped,
// so references stay intact.
func (e *Engine) applyMerge(tx *sql.Tx, snap *store.Snapshot) (*Summary, error) {
	liveJobs, err := naturalKeyMap(tx, "SELECT url, id FROM jobs")
	if err != nil {
		return nil, err
	}
	liveProposals, err := naturalKeyMap(tx, "SELECT fingerprint, id FROM proposals")
	if err != nil {
		return nil, err
	}
	liveIDs, err := idSet(tx, "SELECT id FROM jobs UNION SELECT id FROM proposals")
	if err != nil {
		return nil, err
	}
	liveRevisions, err := idSet(tx, "SELECT proposal_id FROM proposal_revisions")
	if err != nil {
		return nil, err
	}

	summary := &Summary{}

	// Archive job id -> id the row has (or already had) in the live
	// store, for re-pointing proposals.
	jobID := make(map[string]string, len(snap.Jobs))
	for i, j := range snap.Jobs {
		j = defaultedJob(j)
		if existing, ok := liveJobs[j.URL]; ok {
			jobID[j.ID] = existing
			summary.Skipped++
		} else {
			newID := j.ID
			if liveIDs[newID] {
				// Same row id, different natural key: keep the live
				// row untouched and give the imported one a fresh id.
				newID = uuid.NewString()
			}
			jobID[j.ID] = newID
			j.ID = newID
			if err := insertJob(tx, j); err != nil {
				return nil, err
			}
			liveIDs[newID] = true
			summary.JobsImported++
		}
		e.batchProgress(PhaseJobs, i+1, len(snap.Jobs))
	}

	proposalID := make(map[string]string, len(snap.Proposals))
	for i, p := range snap.Proposals {
		p = defaultedProposal(p)
		if existing, ok := liveProposals[p.Fingerprint]; ok {
			proposalID[p.ID] = existing
			summary.Skipped++
		} else {
			newID := p.ID
			if liveIDs[newID] {
				newID = uuid.NewString()
			}
			proposalID[p.ID] = newID
			p.ID = newID
			if mapped, ok := jobID[p.JobID]; ok {
				p.JobID = mapped
			} else if p.JobID != "" && !liveIDs[p.JobID] {
				// Dangling reference in the archive; keep the proposal,
				// drop the link.
				p.JobID = ""
			}
			if err := insertProposal(tx, p); err != nil {
				return nil, err
			}
			liveIDs[newID] = true
			summary.ProposalsImported++
		}
		e.batchProgress(PhaseProposals, i+1, len(snap.Proposals))
	}

	for i, rb := range snap.Revisions {
		target, ok := proposalID[rb.ProposalID]
		if !ok || liveRevisions[target] {
			// History for a proposal that was skipped (or that already
			// has live history) is never merged over existing rows.
			summary.Skipped++
		} else {
			if err := insertRevisionBlob(tx, target, rb.Payload); err != nil {
				return nil, err
			}
			liveRevisions[target] = true
			summary.RevisionsImported++
		}
		e.batchProgress(PhaseRevisions, i+1, len(snap.Revisions))
	}
	return summary, nil
}

// batchProgress emits once per batch boundary and always at the end of
// a phase.
func (e *Engine) batchProgress(phase Phase, current, total int) {
	if current == total || current%batchSize == 0 {
		e.emit(Progress{Phase: phase, Current: current, Total: total})
	}
}

// defaultedJob fills fields an older-schema archive doesn't carry.
func defaultedJob(j store.Job) store.Job {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = "new"
	}
	return j
}

func defaultedProposal(p store.Proposal) store.Proposal {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Fingerprint == "" {
		p.Fingerprint = store.Fingerprint(p.Content)
	}
	return p
}

func insertJob(tx *sql.Tx, j store.Job) error {
	_, err := tx.Exec(`
		INSERT INTO jobs (id, url, title, description, score, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.URL, j.Title, j.Description, j.Score, j.Status, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

func insertProposal(tx *sql.Tx, p store.Proposal) error {
	var jobID any
	if p.JobID != "" {
		jobID = p.JobID
	}
	_, err := tx.Exec(`
		INSERT INTO proposals (id, job_id, fingerprint, content, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, jobID, p.Fingerprint, p.Content, p.Strategy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert proposal %s: %w", p.ID, err)
	}
	return nil
}

func insertRevisionBlob(tx *sql.Tx, proposalID string, payload []byte) error {
	if _, err := tx.Exec(`INSERT INTO proposal_revisions (proposal_id, payload) VALUES (?, ?)`,
		proposalID, payload); err != nil {
		return fmt.Errorf("insert revisions for %s: %w", proposalID, err)
	}
	return nil
}

func naturalKeyMap(tx *sql.Tx, query string) (map[string]string, error) {
	rows, err := tx.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		out[key] = id
	}
	return out, rows.Err()
}

func idSet(tx *sql.Tx, query string) (map[string]bool, error) {
	rows, err := tx.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
