package backup

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zianansar/proposal-writer-sub001/internal/archive"
	"github.com/zianansar/proposal-writer-sub001/internal/crypto"
	"github.com/zianansar/proposal-writer-sub001/internal/revision"
	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

const testPassphrase = "ValidPass123!"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestEngine(t *testing.T, onProgress func(Progress)) (*Engine, *store.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "proposals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	e := NewEngine(st, Config{
		DataDir:    dataDir,
		TempDir:    t.TempDir(),
		Logger:     quietLogger(),
		OnProgress: onProgress,
	})
	t.Cleanup(e.Close)
	return e, st, dataDir
}

func seedStore(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	j1 := &store.Job{URL: "https://jobs.example/crawler", Title: "Build a crawler", Score: 0.8}
	if err := st.InsertJob(ctx, j1); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := st.InsertJob(ctx, &store.Job{URL: "https://jobs.example/css", Title: "Fix CSS"}); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	p := &store.Proposal{JobID: j1.ID, Content: "I have shipped three crawlers.", Strategy: "social_proof"}
	if err := st.InsertProposal(ctx, p); err != nil {
		t.Fatalf("insert proposal: %v", err)
	}
	recs := []revision.Record{
		{ID: "r1", Content: "v1", CreatedAt: 1},
		{ID: "r2", Content: "v2", CreatedAt: 2},
		{ID: "r3", Content: "v3", CreatedAt: 3},
	}
	if err := st.AppendRevisions(ctx, p.ID, recs); err != nil {
		t.Fatalf("append revisions: %v", err)
	}
}

// writeCraftedArchive builds an archive directly from a hand-made
// snapshot, bypassing the live store.
func writeCraftedArchive(t *testing.T, snap *store.Snapshot) string {
	t.Helper()
	if snap.Jobs == nil {
		snap.Jobs = []store.Job{}
	}
	if snap.Proposals == nil {
		snap.Proposals = []store.Proposal{}
	}
	if snap.Revisions == nil {
		snap.Revisions = []store.RevisionBlob{}
	}
	path := filepath.Join(t.TempDir(), "crafted.pwa")
	pass := crypto.NewSecretString(testPassphrase)
	defer pass.Destroy()
	if _, err := archive.Write(path, snap, pass); err != nil {
		t.Fatalf("write crafted archive: %v", err)
	}
	return path
}

func TestExportImportReplaceAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)

	path, err := src.ExportArchive(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, dstStore, _ := newTestEngine(t, nil)
	summary, err := dst.ExecuteImport(ctx, path, testPassphrase, ReplaceAll)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.JobsImported != 2 || summary.ProposalsImported != 1 || summary.RevisionsImported != 1 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.Skipped != 0 {
		t.Fatalf("skipped %d, want 0", summary.Skipped)
	}

	counts, err := dstStore.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Jobs != 2 || counts.Proposals != 1 || counts.Revisions != 1 {
		t.Fatalf("target counts %+v", counts)
	}

	// Revision history survives the round trip intact.
	snap, err := dstStore.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	recs, err := revision.Decompress(snap.Revisions[0].Payload)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "r1" || recs[2].Content != "v3" {
		t.Fatalf("revisions %+v", recs)
	}
}

func TestReplaceAllOverwritesTarget(t *testing.T) {
	ctx := context.Background()
	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)
	path, err := src.ExportArchive(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, dstStore, dataDir := newTestEngine(t, nil)
	if err := dstStore.InsertJob(ctx, &store.Job{URL: "https://jobs.example/doomed"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := dst.ExecuteImport(ctx, path, testPassphrase, ReplaceAll); err != nil {
		t.Fatalf("import: %v", err)
	}

	counts, err := dstStore.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Jobs != 2 {
		t.Fatalf("jobs %d after replace, want 2 (pre-existing row must be gone)", counts.Jobs)
	}

	// ReplaceAll must have written a pre-import safety copy first.
	backups, err := filepath.Glob(filepath.Join(dataDir, "backups", "pre-import-*.db"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("got %d pre-import backups, want 1", len(backups))
	}
}

func TestMergeSkipDuplicates(t *testing.T) {
	ctx := context.Background()
	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)
	path, err := src.ExportArchive(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, dstStore, _ := newTestEngine(t, nil)
	// One of the two archive jobs already exists by URL, under a
	// different title the import must not touch.
	existing := &store.Job{URL: "https://jobs.example/crawler", Title: "My own title"}
	if err := dstStore.InsertJob(ctx, existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	summary, err := dst.ExecuteImport(ctx, path, testPassphrase, MergeSkipDuplicates)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.JobsImported != 1 {
		t.Fatalf("jobs imported %d, want 1", summary.JobsImported)
	}
	if summary.ProposalsImported != 1 || summary.RevisionsImported != 1 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.Skipped != 1 {
		t.Fatalf("skipped %d, want 1", summary.Skipped)
	}

	// The colliding live row is never altered.
	jobs, err := dstStore.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, j := range jobs {
		if j.URL == existing.URL && j.Title != "My own title" {
			t.Fatalf("pre-existing row was overwritten: %+v", j)
		}
	}
	counts, err := dstStore.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Jobs != 2 {
		t.Fatalf("jobs %d, want 2", counts.Jobs)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)
	path, err := src.ExportArchive(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, dstStore, _ := newTestEngine(t, nil)
	if _, err := dst.ExecuteImport(ctx, path, testPassphrase, MergeSkipDuplicates); err != nil {
		t.Fatalf("first import: %v", err)
	}
	summary, err := dst.ExecuteImport(ctx, path, testPassphrase, MergeSkipDuplicates)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if summary.JobsImported != 0 || summary.ProposalsImported != 0 || summary.RevisionsImported != 0 {
		t.Fatalf("second import inserted rows: %+v", summary)
	}
	counts, err := dstStore.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Jobs != 2 || counts.Proposals != 1 || counts.Revisions != 1 {
		t.Fatalf("counts changed on re-import: %+v", counts)
	}
}

func TestNewerArchiveRejectedBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	path := writeCraftedArchive(t, &store.Snapshot{
		SchemaVersion: store.SchemaVersion + 1,
		ExportedAt:    time.Now().UTC(),
		Jobs:          []store.Job{{ID: "j1", URL: "https://jobs.example/future"}},
	})

	e, st, _ := newTestEngine(t, nil)
	seedStore(t, st)
	before, err := st.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}

	if _, err := e.ExecuteImport(ctx, path, testPassphrase, ReplaceAll); !errors.Is(err, ErrNewerArchive) {
		t.Fatalf("got %v, want ErrNewerArchive", err)
	}

	after, err := st.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if before != after {
		t.Fatalf("live store changed: before %+v after %+v", before, after)
	}
}

func TestOlderArchiveDefaultsNewFields(t *testing.T) {
	ctx := context.Background()
	// A schema v2 producer knew nothing of job status or proposal
	// strategy; those fields are absent from its snapshots.
	path := writeCraftedArchive(t, &store.Snapshot{
		SchemaVersion: 2,
		ExportedAt:    time.Now().UTC(),
		Jobs:          []store.Job{{ID: "j1", URL: "https://jobs.example/old", Title: "Old job"}},
		Proposals: []store.Proposal{{
			ID: "p1", JobID: "j1",
			Content:     "vintage proposal",
			Fingerprint: store.Fingerprint("vintage proposal"),
		}},
	})

	e, st, _ := newTestEngine(t, nil)

	res, err := e.DecryptArchive(ctx, path, testPassphrase)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if res.Compatibility.Kind != archive.OlderArchive {
		t.Fatalf("compatibility %v, want OlderArchive", res.Compatibility.Kind)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "defaulted") {
		t.Fatalf("warnings %v", res.Warnings)
	}

	if _, err := e.ExecuteImport(ctx, path, testPassphrase, ReplaceAll); err != nil {
		t.Fatalf("import: %v", err)
	}
	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != "new" {
		t.Fatalf("schema-new field not defaulted: %+v", jobs)
	}
}

func TestMidApplyFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	// Two rows with the same natural key violate the jobs URL unique
	// constraint partway through Applying.
	path := writeCraftedArchive(t, &store.Snapshot{
		SchemaVersion: store.SchemaVersion,
		ExportedAt:    time.Now().UTC(),
		Jobs: []store.Job{
			{ID: "j1", URL: "https://jobs.example/dup"},
			{ID: "j2", URL: "https://jobs.example/dup"},
		},
	})

	e, st, _ := newTestEngine(t, nil)
	seedStore(t, st)
	before, err := st.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	snapBefore, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if _, err := e.ExecuteImport(ctx, path, testPassphrase, ReplaceAll); !errors.Is(err, ErrImportApplyFailed) {
		t.Fatalf("got %v, want ErrImportApplyFailed", err)
	}

	after, err := st.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if before != after {
		t.Fatalf("rollback left changes: before %+v after %+v", before, after)
	}
	snapAfter, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapAfter.Jobs) != len(snapBefore.Jobs) || snapAfter.Jobs[0] != snapBefore.Jobs[0] {
		t.Fatal("row content changed across failed import")
	}
}

func TestWrongPassphraseImport(t *testing.T) {
	ctx := context.Background()
	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)
	path, err := src.ExportArchive(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	tmpDir := t.TempDir()
	dst, dstStore, _ := newTestEngine(t, nil)
	dst.tempDir = tmpDir
	if _, err := dst.ExecuteImport(ctx, path, "WrongPass12345", ReplaceAll); !errors.Is(err, archive.ErrDecryptionFailed) {
		t.Fatalf("got %v, want ErrDecryptionFailed", err)
	}

	// Temp extraction file is cleaned even on the failure path.
	leftovers, err := filepath.Glob(filepath.Join(tmpDir, "proposal-import-*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}

	counts, err := dstStore.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Jobs != 0 {
		t.Fatal("live store touched by failed decrypt")
	}
}

func TestProgressEmitted(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var events []Progress
	collect := func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}

	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)
	path, err := src.ExportArchive(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, _, _ := newTestEngine(t, collect)
	if _, err := dst.ExecuteImport(ctx, path, testPassphrase, ReplaceAll); err != nil {
		t.Fatalf("import: %v", err)
	}
	dst.Close() // drain the forwarder before asserting

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("no progress events emitted")
	}
	var sawJobsDone bool
	for _, p := range events {
		if p.Current > p.Total {
			t.Fatalf("impossible progress %+v", p)
		}
		if p.Phase == PhaseJobs && p.Current == p.Total && p.Total == 2 {
			sawJobsDone = true
		}
	}
	if !sawJobsDone {
		t.Fatalf("missing final jobs event in %+v", events)
	}
}

func TestImportCancelledBeforeExtraction(t *testing.T) {
	src, srcStore, _ := newTestEngine(t, nil)
	seedStore(t, srcStore)
	path, err := src.ExportArchive(context.Background(), testPassphrase)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, dstStore, _ := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dst.ExecuteImport(ctx, path, testPassphrase, ReplaceAll); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	counts, err := dstStore.TableCounts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Jobs != 0 {
		t.Fatal("cancelled import touched the store")
	}
}
