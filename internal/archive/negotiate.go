package archive

import "fmt"

// CompatKind classifies an archive's schema version against the running
// application's.
type CompatKind int

const (
	// Compatible: same schema version, import proceeds as-is.
	Compatible CompatKind = iota
	// OlderArchive: the archive predates the current schema; import
	// proceeds, defaulting fields the archive doesn't know about.
	OlderArchive
	// NewerArchive: the archive is from a future schema; the running
	// application cannot safely interpret it and must refuse.
	NewerArchive
)

// SchemaCompatibility is computed per import attempt, never persisted.
type SchemaCompatibility struct {
	Kind           CompatKind
	ArchiveVersion int
	CurrentVersion int
}

// Negotiate compares the archive's recorded schema version with the
// running application's.
func Negotiate(archiveVersion, currentVersion int) SchemaCompatibility {
	c := SchemaCompatibility{ArchiveVersion: archiveVersion, CurrentVersion: currentVersion}
	switch {
	case archiveVersion == currentVersion:
		c.Kind = Compatible
	case archiveVersion < currentVersion:
		c.Kind = OlderArchive
	default:
		c.Kind = NewerArchive
	}
	return c
}

func (c SchemaCompatibility) String() string {
	switch c.Kind {
	case Compatible:
		return fmt.Sprintf("compatible (schema v%d)", c.ArchiveVersion)
	case OlderArchive:
		return fmt.Sprintf("older archive (schema v%d, current v%d)", c.ArchiveVersion, c.CurrentVersion)
	default:
		return fmt.Sprintf("newer archive (schema v%d, current v%d)", c.ArchiveVersion, c.CurrentVersion)
	}
}
