// Package catalog holds the catalog embedding index: an immutable snapshot of
// every catalog product with its L2-normalized embedding. Snapshots are built
// offline by the catalog refresh job and swapped in atomically; in-flight
// queries always see one consistent snapshot.
package catalog

import (
	"math"
	"sort"
	"time"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// Entry is one published catalog product. Entries are immutable once
// published; the catalog is replaced wholesale on refresh, never patched.
type Entry struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Snapshot is one consistent, immutable view of the catalog index. Entries are
// held sorted by product id so equal-similarity ties resolve deterministically
// downstream.
type Snapshot struct {
	builtAt   time.Time
	dimension int
	entries   []Entry
	byID      map[string]int
}

// BuildSnapshot validates and normalizes entries into a query-ready snapshot.
// wantDim of 0 accepts whatever dimensionality the first entry carries; a
// nonzero wantDim rejects entries of any other dimensionality.
func BuildSnapshot(entries []Entry, wantDim int) (*Snapshot, error) {
	if len(entries) == 0 {
		return nil, errors.Newf("catalog snapshot has no entries").
			Category(errors.CategoryCatalog).
			Build()
	}

	dim := wantDim
	if dim == 0 {
		dim = len(entries[0].Embedding)
	}
	if dim == 0 {
		return nil, errors.Newf("catalog entry %s has an empty embedding", entries[0].ProductID).
			Category(errors.CategoryCatalog).
			Build()
	}

	normalized := make([]Entry, len(entries))
	copy(normalized, entries)
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].ProductID < normalized[j].ProductID
	})

	byID := make(map[string]int, len(normalized))
	for i := range normalized {
		e := &normalized[i]
		if e.ProductID == "" {
			return nil, errors.Newf("catalog entry %d has an empty product id", i).
				Category(errors.CategoryCatalog).
				Build()
		}
		if _, dup := byID[e.ProductID]; dup {
			return nil, errors.Newf("duplicate product id %s in catalog snapshot", e.ProductID).
				Category(errors.CategoryCatalog).
				Build()
		}
		if len(e.Embedding) != dim {
			return nil, errors.DimensionMismatchError(len(e.Embedding), dim)
		}
		vec, err := normalize(e.Embedding)
		if err != nil {
			return nil, errors.Newf("catalog entry %s: %w", e.ProductID, err).
				Category(errors.CategoryCatalog).
				Build()
		}
		e.Embedding = vec
		byID[e.ProductID] = i
	}

	return &Snapshot{
		builtAt:   time.Now(),
		dimension: dim,
		entries:   normalized,
		byID:      byID,
	}, nil
}

// Dimension returns the embedding dimensionality of the snapshot.
func (s *Snapshot) Dimension() int { return s.dimension }

// Len returns the number of catalog entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// BuiltAt returns when the snapshot was assembled.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Entry returns the i-th entry in product-id order. Callers must not mutate
// the returned value's slices.
func (s *Snapshot) Entry(i int) *Entry { return &s.entries[i] }

// Lookup returns the entry for productID if present.
func (s *Snapshot) Lookup(productID string) (*Entry, bool) {
	i, ok := s.byID[productID]
	if !ok {
		return nil, false
	}
	return &s.entries[i], true
}

// normalize returns an L2-normalized copy of vec.
func normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, errors.NewStd("embedding has zero magnitude")
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out, nil
}
