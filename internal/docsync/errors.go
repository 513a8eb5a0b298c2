package docsync

import (
	"fmt"

	"github.com/google/uuid"
)

// Sync phases reported in SyncError.
const (
	PhaseEmbed  = "embed"
	PhaseInsert = "insert"
	PhaseDelete = "delete"
)

// SyncError reports which phase of a sync failed for which version.
// The insert-before-delete ordering means an embed or insert failure
// leaves the previous version's chunks untouched, and a delete failure
// leaves duplicates; neither direction loses recall.
type SyncError struct {
	Phase   string
	DocID   uuid.UUID
	Version int
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed for document %s version %d: %v",
		e.Phase, e.DocID, e.Version, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
