// Package backup orchestrates encrypted export and import of the live
// store: archive creation, passphrase-gated preview, schema
// negotiation, and the transactional all-or-nothing apply.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zianansar/proposal-writer-sub001/internal/archive"
	"github.com/zianansar/proposal-writer-sub001/internal/crypto"
	"github.com/zianansar/proposal-writer-sub001/internal/storage"
	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

type ImportMode int

const (
	// ReplaceAll clears the live tables and installs the archive's rows
	// wholesale, after taking a pre-import backup of the live database.
	ReplaceAll ImportMode = iota
	// MergeSkipDuplicates inserts only rows whose natural key is absent
	// from the live store; collisions are counted, never overwritten.
	MergeSkipDuplicates
)

func (m ImportMode) String() string {
	if m == ReplaceAll {
		return "replace_all"
	}
	return "merge_skip_duplicates"
}

// Phase names the stage a Progress event belongs to.
type Phase string

const (
	PhaseExtract   Phase = "extract"
	PhaseJobs      Phase = "jobs"
	PhaseProposals Phase = "proposals"
	PhaseRevisions Phase = "revisions"
)

// Progress is a transient event emitted while an import runs. Delivery
// is fire-and-forget: a slow or absent listener never affects the
// import transaction.
type Progress struct {
	Phase   Phase `json:"phase"`
	Current int   `json:"current"`
	Total   int   `json:"total"`
}

// Summary is the final result of a completed import.
type Summary struct {
	JobsImported      int           `json:"jobs_imported"`
	ProposalsImported int           `json:"proposals_imported"`
	RevisionsImported int           `json:"revisions_imported"`
	Skipped           int           `json:"skipped"`
	Duration          time.Duration `json:"duration"`
}

// DecryptResult is the outcome of a side-effect-free decrypt+inspect
// pass over an archive.
type DecryptResult struct {
	Metadata      archive.Metadata            `json:"metadata"`
	Compatibility archive.SchemaCompatibility `json:"compatibility"`
	Warnings      []string                    `json:"warnings"`
}

var (
	ErrNewerArchive      = errors.New("backup: archive was made by a newer version; upgrade required")
	ErrImportApplyFailed = errors.New("backup: import failed and was rolled back; the live store is unchanged")
)

// Config carries the engine's dependencies and tuning.
type Config struct {
	DataDir     string // exports and pre-import backups live here
	TempDir     string // "" means the OS temp dir
	Logger      *logrus.Logger
	OnProgress  func(Progress) // optional listener; must tolerate drops
	KeepBackups int            // pre-import backups retained, 0 = keep all
}

// Engine runs at most one import at a time against its store.
type Engine struct {
	st      *store.Store
	backups *storage.BackupStore
	dataDir string
	tempDir string
	log     *logrus.Entry
	limiter *rate.Limiter
	keep    int

	onProgress func(Progress)
	events     chan Progress
	done       chan struct{}
	closeOnce  sync.Once

	// mu is the single-writer lock: held for the whole Applying phase,
	// not per statement.
	mu sync.Mutex
}

func NewEngine(st *store.Store, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		st:      st,
		backups: storage.NewBackupStore(filepath.Join(cfg.DataDir, "backups")),
		dataDir: cfg.DataDir,
		tempDir: cfg.TempDir,
		log:     logger.WithField("component", "backup"),
		// Progress cadence: at most 20 events/s plus the final event of
		// each phase, so a UI can render without being flooded.
		limiter:    rate.NewLimiter(rate.Limit(20), 1),
		keep:       cfg.KeepBackups,
		onProgress: cfg.OnProgress,
		events:     make(chan Progress, 64),
		done:       make(chan struct{}),
	}
	go e.forward()
	return e
}

// forward decouples listeners from the import transaction: emit drops
// events when the buffer is full rather than ever blocking.
func (e *Engine) forward() {
	for p := range e.events {
		if e.onProgress != nil {
			e.onProgress(p)
		}
	}
	close(e.done)
}

// Close stops the progress forwarder after draining buffered events.
// Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.events) })
	<-e.done
}

func (e *Engine) emit(p Progress) {
	if p.Current < p.Total && !e.limiter.Allow() {
		return
	}
	select {
	case e.events <- p:
	default:
	}
}

// ExportArchive snapshots the live store and writes a self-contained
// encrypted archive under the data directory, returning its path.
func (e *Engine) ExportArchive(ctx context.Context, passphrase string) (string, error) {
	pass := crypto.NewSecretString(passphrase)
	defer pass.Destroy()

	snap, err := e.st.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(e.dataDir, "exports")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("backup: create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("proposals-%s.pwa", time.Now().Format("20060102-150405")))

	meta, err := archive.Write(path, snap, pass)
	if err != nil {
		return "", err
	}
	e.log.WithFields(logrus.Fields{
		"path":      filepath.Base(path),
		"jobs":      meta.Jobs,
		"proposals": meta.Proposals,
		"revisions": meta.Revisions,
	}).Info("archive exported")
	return path, nil
}

// PreviewArchive reads the cleartext metadata header. No passphrase.
func (e *Engine) PreviewArchive(path string) (archive.Metadata, error) {
	return archive.ReadMetadata(path)
}

// DecryptArchive extracts and decrypts an archive for inspection,
// classifying schema compatibility. Side-effect free: the temp
// extraction file is removed on every path and the live store is never
// touched.
func (e *Engine) DecryptArchive(ctx context.Context, path, passphrase string) (*DecryptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pass := crypto.NewSecretString(passphrase)
	defer pass.Destroy()

	ex, err := archive.Extract(path, e.tempDir)
	if err != nil {
		return nil, err
	}
	defer e.cleanup(ex)

	pv, err := ex.OpenPreview(pass)
	if err != nil {
		return nil, err
	}

	current, err := e.st.CurrentSchemaVersion()
	if err != nil {
		return nil, err
	}
	comp := archive.Negotiate(pv.Snapshot.SchemaVersion, current)
	res := &DecryptResult{Metadata: pv.Metadata, Compatibility: comp}
	switch comp.Kind {
	case archive.OlderArchive:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"archive uses schema v%d (current v%d); fields added since then will be defaulted on import",
			comp.ArchiveVersion, comp.CurrentVersion))
	case archive.NewerArchive:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"archive uses schema v%d but this application only understands v%d; upgrade required before importing",
			comp.ArchiveVersion, comp.CurrentVersion))
	}
	return res, nil
}

// ExecuteImport runs the full import state machine: extract, preview
// open, compatibility check, then the transactional apply. Either the
// whole archive lands or the live store is left untouched.
func (e *Engine) ExecuteImport(ctx context.Context, path, passphrase string, mode ImportMode) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	pass := crypto.NewSecretString(passphrase)
	defer pass.Destroy()

	// Cancellation is honored before extraction and between the
	// no-side-effect steps; once Applying starts the transaction runs
	// to commit or rollback.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.emit(Progress{Phase: PhaseExtract, Current: 0, Total: 1})
	ex, err := archive.Extract(path, e.tempDir)
	if err != nil {
		return nil, err
	}
	defer e.cleanup(ex)
	e.emit(Progress{Phase: PhaseExtract, Current: 1, Total: 1})

	pv, err := ex.OpenPreview(pass)
	if err != nil {
		return nil, err
	}

	current, err := e.st.CurrentSchemaVersion()
	if err != nil {
		return nil, err
	}
	comp := archive.Negotiate(pv.Snapshot.SchemaVersion, current)
	if comp.Kind == archive.NewerArchive {
		return nil, fmt.Errorf("%w (archive v%d, current v%d)", ErrNewerArchive, comp.ArchiveVersion, comp.CurrentVersion)
	}
	if comp.Kind == archive.OlderArchive {
		e.log.WithFields(logrus.Fields{
			"archive_schema": comp.ArchiveVersion,
			"current_schema": comp.CurrentVersion,
		}).Warn("importing older archive; newer fields will be defaulted")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if mode == ReplaceAll {
		if err := e.preImportBackup(ctx); err != nil {
			return nil, err
		}
	}

	// The apply transaction deliberately ignores ctx from here on: once
	// Applying has begun the only exits are commit and rollback.
	summary, err := e.apply(pv.Snapshot, mode)
	if err != nil {
		e.log.WithError(err).Error("import rolled back")
		return nil, fmt.Errorf("%w: %v", ErrImportApplyFailed, err)
	}
	summary.Duration = time.Since(start)

	e.log.WithFields(logrus.Fields{
		"mode":      mode.String(),
		"jobs":      summary.JobsImported,
		"proposals": summary.ProposalsImported,
		"revisions": summary.RevisionsImported,
		"skipped":   summary.Skipped,
		"duration":  summary.Duration.Round(time.Millisecond).String(),
	}).Info("import committed")
	return summary, nil
}

// preImportBackup checkpoints the WAL and copies the live database
// aside. The copy is fully synced before Applying begins, so a crash
// during backup cannot touch the store and a crash during apply still
// leaves the copy.
func (e *Engine) preImportBackup(ctx context.Context) error {
	if err := e.st.Checkpoint(ctx); err != nil {
		return err
	}
	path, err := e.backups.Put(e.st.Path())
	if err != nil {
		return err
	}
	e.log.WithField("backup", filepath.Base(path)).Info("pre-import backup written")
	if e.keep > 0 {
		if err := e.backups.Prune(e.keep); err != nil {
			// Pruning old safety copies is housekeeping, not part of
			// the import's correctness.
			e.log.WithError(err).Warn("backup prune failed")
		}
	}
	return nil
}

// cleanup removes the temp extraction file. Transient filesystem errors
// here are logged, never escalated: the primary operation has already
// succeeded or failed on its own terms.
func (e *Engine) cleanup(ex *archive.Extraction) {
	if err := ex.Cleanup(); err != nil {
		e.log.WithError(err).Warn("temp extraction cleanup failed")
	}
}
