package backup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zianansar/proposal-writer-sub001/internal/archive"
)

// DefaultSweepAge is how old a temp extraction file must be before the
// startup sweep treats it as an orphan. Generous enough that a slow
// import still running in another process is never swept.
const DefaultSweepAge = 24 * time.Hour

// Sweep removes orphaned temp extraction files left behind by a crash:
// files in dir matching the extraction name pattern and older than
// maxAge. Best-effort; individual failures are logged and skipped.
// Returns the number of files removed.
func Sweep(dir string, maxAge time.Duration, log *logrus.Entry) int {
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, archive.TempPattern))
	if err != nil {
		log.WithError(err).Warn("temp sweep: bad pattern")
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.WithError(err).WithField("file", filepath.Base(path)).Warn("temp sweep: remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("swept orphaned temp extraction files")
	}
	return removed
}
