package docsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Reconcile actions, in increasing order of work done.
const (
	// ActionNone means the index already matched the current version.
	ActionNone = "none"
	// ActionSweep means the current version's chunks were intact and only
	// stray rows were removed.
	ActionSweep = "sweep"
	// ActionResync means the current version's chunks were re-embedded and
	// rewritten before strays were swept.
	ActionResync = "resync"
	// ActionPurge means the document no longer exists and its chunks were
	// dropped.
	ActionPurge = "purge"
)

// ReconcileResult reports what reconciliation did to one document.
type ReconcileResult struct {
	DocID   uuid.UUID `json:"doc_id"`
	Version int       `json:"version_number,omitempty"`
	Action  string    `json:"action"`
}

// Reconcile compares a document's index rows against its current version and
// repairs any divergence: missing or miscounted chunks are re-embedded and
// rewritten, rows from other versions are swept. It is idempotent; a second
// run right after reports ActionNone. A document that no longer exists
// surfaces document.ErrNotFound.
func (c *Coordinator) Reconcile(ctx context.Context, docID uuid.UUID) (ReconcileResult, error) {
	_, current, err := c.docs.GetCurrent(ctx, docID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("loading current version: %w", err)
	}

	indexed, err := c.index.IndexedVersions(ctx, docID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("listing indexed versions: %w", err)
	}
	count, err := c.index.CountForVersion(ctx, docID, current.Number)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("counting current chunks: %w", err)
	}

	want := len(c.chunker.Split(current.Content))
	strays := slices.ContainsFunc(indexed, func(v int) bool { return v != current.Number })

	res := ReconcileResult{DocID: docID, Version: current.Number, Action: ActionNone}
	switch {
	case count != want:
		n, err := c.indexVersion(ctx, docID, current.Number, current.Content)
		if err != nil {
			return ReconcileResult{}, err
		}
		if _, err := c.index.DeleteStale(ctx, docID, current.Number); err != nil {
			return ReconcileResult{}, &SyncError{Phase: PhaseDelete, DocID: docID, Version: current.Number, Err: err}
		}
		if count > n {
			if _, err := c.index.DeleteBeyond(ctx, docID, current.Number, n); err != nil {
				return ReconcileResult{}, &SyncError{Phase: PhaseDelete, DocID: docID, Version: current.Number, Err: err}
			}
		}
		res.Action = ActionResync
	case strays:
		if _, err := c.index.DeleteStale(ctx, docID, current.Number); err != nil {
			return ReconcileResult{}, &SyncError{Phase: PhaseDelete, DocID: docID, Version: current.Number, Err: err}
		}
		res.Action = ActionSweep
	}

	if res.Action != ActionNone {
		c.logger.Info("index reconciled",
			"doc_id", docID,
			"version", current.Number,
			"action", res.Action,
		)
	}
	return res, nil
}

// ReconcileAll repairs every document whose index rows disagree with its
// current version and purges chunks of documents that no longer exist. The
// two version listings make the all-clean case two queries; only suspects
// get the full per-document treatment. Per-document chunk counts are not
// rechecked here, so re-chunking after a chunk size change needs
// per-document Reconcile calls.
//
// Failures on one document do not stop the pass; they are joined into the
// returned error alongside whatever results were achieved.
func (c *Coordinator) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	currents, err := c.docs.CurrentVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing current versions: %w", err)
	}
	indexed, err := c.index.AllIndexedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indexed versions: %w", err)
	}

	var results []ReconcileResult
	var errs []error

	for docID := range indexed {
		if _, ok := currents[docID]; ok {
			continue
		}
		if _, err := c.index.DeleteDoc(ctx, docID); err != nil {
			errs = append(errs, fmt.Errorf("purging document %s: %w", docID, err))
			continue
		}
		c.logger.Info("purged chunks of deleted document", "doc_id", docID)
		results = append(results, ReconcileResult{DocID: docID, Action: ActionPurge})
	}

	for docID, currentVersion := range currents {
		versions := indexed[docID]
		if len(versions) == 1 && versions[0] == currentVersion {
			continue
		}
		res, err := c.Reconcile(ctx, docID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconciling document %s: %w", docID, err))
			continue
		}
		if res.Action != ActionNone {
			results = append(results, res)
		}
	}

	slices.SortFunc(results, func(a, b ReconcileResult) int {
		return strings.Compare(a.DocID.String(), b.DocID.String())
	})
	return results, errors.Join(errs...)
}
