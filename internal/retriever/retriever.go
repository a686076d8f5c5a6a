// Package retriever answers embedding queries against the active catalog
// snapshot: cosine top-k with a similarity floor. Queries are pure reads over
// an immutable snapshot, safe for any number of concurrent callers.
package retriever

import (
	"math"
	"sort"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// Retriever produces ranked candidate shortlists for crop embeddings.
type Retriever struct {
	index *catalog.Index
}

// New returns a Retriever reading from the given index reference cell.
func New(index *catalog.Index) *Retriever {
	return &Retriever{index: index}
}

// Retrieve returns at most k candidates with cosine similarity of at least
// minSimilarity, ordered by descending similarity. Equal similarities resolve
// to the lexicographically lower product id so results are reproducible. The
// query embedding is normalized with the same transform applied to the index;
// a dimensionality mismatch is a caller error, not a runtime condition.
func (r *Retriever) Retrieve(embedding []float32, k int, minSimilarity float64) ([]detection.CandidateMatch, error) {
	snapshot := r.index.Active()
	if snapshot == nil {
		return nil, errors.Newf("no active catalog snapshot").
			Category(errors.CategoryRetrieval).
			Build()
	}

	if len(embedding) != snapshot.Dimension() {
		return nil, errors.DimensionMismatchError(len(embedding), snapshot.Dimension())
	}

	query, err := normalizeQuery(embedding)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryRetrieval).
			Build()
	}

	matches := make([]detection.CandidateMatch, 0, k)
	for i := 0; i < snapshot.Len(); i++ {
		entry := snapshot.Entry(i)
		score := dot(query, entry.Embedding)
		if score < minSimilarity {
			continue
		}
		matches = append(matches, detection.CandidateMatch{
			ProductID:  entry.ProductID,
			Name:       entry.Name,
			Category:   entry.Category,
			Similarity: score,
		})
	}

	// Entries are iterated in product-id order, so a stable sort by score
	// leaves equal scores resolved to the lower product id.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}

	return matches, nil
}

// dot computes the inner product of two equal-length vectors. With both sides
// L2-normalized this is the cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalizeQuery returns an L2-normalized copy of vec.
func normalizeQuery(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, errors.NewStd("query embedding has zero magnitude")
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out, nil
}
