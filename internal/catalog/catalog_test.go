package catalog

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

func testEntries() []Entry {
	return []Entry{
		{ProductID: "P2", Name: "Chicken Sandwich", Category: "food-to-go", Embedding: []float32{0, 1}},
		{ProductID: "P1", Name: "Sourdough Loaf", Category: "bakery", Embedding: []float32{3, 0}},
	}
}

func TestBuildSnapshotNormalizesAndSorts(t *testing.T) {
	t.Parallel()

	snap, err := BuildSnapshot(testEntries(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, 2, snap.Dimension())

	// Sorted by product id regardless of input order.
	assert.Equal(t, "P1", snap.Entry(0).ProductID)
	assert.Equal(t, "P2", snap.Entry(1).ProductID)

	// [3,0] normalizes to unit length.
	assert.InDelta(t, 1.0, float64(snap.Entry(0).Embedding[0]), 1e-6)
	assert.InDelta(t, 0.0, float64(snap.Entry(0).Embedding[1]), 1e-6)
}

func TestBuildSnapshotRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	entries[0].Embedding = []float32{1, 0, 0}

	_, err := BuildSnapshot(entries, 0)
	require.Error(t, err)
	assert.True(t, errors.IsDimensionMismatch(err))
}

func TestBuildSnapshotRejectsBadInput(t *testing.T) {
	t.Parallel()

	t.Run("empty catalog", func(t *testing.T) {
		t.Parallel()
		_, err := BuildSnapshot(nil, 0)
		assert.Error(t, err)
	})

	t.Run("duplicate product id", func(t *testing.T) {
		t.Parallel()
		entries := testEntries()
		entries[1].ProductID = entries[0].ProductID
		_, err := BuildSnapshot(entries, 0)
		assert.Error(t, err)
	})

	t.Run("zero magnitude embedding", func(t *testing.T) {
		t.Parallel()
		entries := testEntries()
		entries[0].Embedding = []float32{0, 0}
		_, err := BuildSnapshot(entries, 0)
		assert.Error(t, err)
	})

	t.Run("empty product id", func(t *testing.T) {
		t.Parallel()
		entries := testEntries()
		entries[0].ProductID = ""
		_, err := BuildSnapshot(entries, 0)
		assert.Error(t, err)
	})
}

func TestSnapshotLookup(t *testing.T) {
	t.Parallel()

	snap, err := BuildSnapshot(testEntries(), 2)
	require.NoError(t, err)

	entry, ok := snap.Lookup("P1")
	require.True(t, ok)
	assert.Equal(t, "Sourdough Loaf", entry.Name)

	_, ok = snap.Lookup("P9")
	assert.False(t, ok)
}

func TestIndexSwapIsAtomic(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	assert.Nil(t, ix.Active())

	snap, err := BuildSnapshot(testEntries(), 0)
	require.NoError(t, err)

	ix.Swap(snap)
	assert.Same(t, snap, ix.Active())

	// A reader holding the old snapshot keeps a consistent view after a swap.
	held := ix.Active()
	snap2, err := BuildSnapshot(testEntries()[:1], 0)
	require.NoError(t, err)
	ix.Swap(snap2)

	assert.Equal(t, 2, held.Len())
	assert.Equal(t, 1, ix.Active().Len())
}

func writeSnapshotFile(t *testing.T, entries []Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	data, err := json.Marshal(snapshotFile{Products: entries})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRebuildFromFile(t *testing.T) {
	t.Parallel()

	path := writeSnapshotFile(t, testEntries())

	ix := NewIndex()
	require.NoError(t, ix.RebuildFromFile(context.Background(), path, 0))
	require.NotNil(t, ix.Active())
	assert.Equal(t, 2, ix.Active().Len())
}

func TestRebuildFailureKeepsActiveSnapshot(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	snap, err := BuildSnapshot(testEntries(), 0)
	require.NoError(t, err)
	ix.Swap(snap)

	err = ix.RebuildFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"), 0)
	require.Error(t, err)
	assert.Same(t, snap, ix.Active())
}

func TestRebuildCancelledKeepsActiveSnapshot(t *testing.T) {
	t.Parallel()

	path := writeSnapshotFile(t, testEntries())

	ix := NewIndex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ix.RebuildFromFile(ctx, path, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Nil(t, ix.Active())
}

func TestNormalizeUnitMagnitude(t *testing.T) {
	t.Parallel()

	vec, err := normalize([]float32{0.99, 0.1})
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}
