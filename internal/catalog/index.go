package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
)

// Index is the versioned reference cell for the active catalog snapshot.
// Single writer (the rebuild job), many readers (pipeline instances). Readers
// never block the writer and vice versa because publication is an atomic
// pointer swap, not in-place mutation.
type Index struct {
	active    atomic.Pointer[Snapshot]
	rebuildMu sync.Mutex // serializes rebuilds, exclusive writer
	logger    *slog.Logger
}

// NewIndex returns an Index with no active snapshot. Queries against an empty
// index fail until the first successful rebuild.
func NewIndex() *Index {
	return &Index{logger: logging.ForService("catalog")}
}

// Active returns the current snapshot, or nil when no snapshot has been
// published yet. The returned snapshot stays consistent for the caller's
// whole query even if a rebuild swaps the active reference concurrently.
func (ix *Index) Active() *Snapshot {
	return ix.active.Load()
}

// Swap publishes a fully built snapshot as the active one.
func (ix *Index) Swap(s *Snapshot) {
	old := ix.active.Swap(s)
	if old != nil {
		ix.logger.Info("catalog snapshot replaced",
			"previous_entries", old.Len(),
			"entries", s.Len(),
			"dimension", s.Dimension())
	} else {
		ix.logger.Info("catalog snapshot published",
			"entries", s.Len(),
			"dimension", s.Dimension())
	}
}

// RebuildFromFile loads a published catalog snapshot file, builds the
// replacement index off to the side, and swaps it in only on success. A
// cancelled or failed rebuild leaves the previously active snapshot untouched.
func (ix *Index) RebuildFromFile(ctx context.Context, path string, wantDim int) error {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	entries, err := LoadSnapshotFile(path)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Category(errors.CategoryCancellation).
			Context("path", path).
			Build()
	}

	snapshot, err := BuildSnapshot(entries, wantDim)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Category(errors.CategoryCancellation).
			Context("path", path).
			Build()
	}

	ix.Swap(snapshot)
	return nil
}
