package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
)

type fakeSource struct {
	rows []datastore.Detection
}

func (f *fakeSource) GetDetectionsInRange(start, end time.Time, branchID string) ([]datastore.Detection, error) {
	var out []datastore.Detection
	for i := range f.rows {
		d := f.rows[i]
		if d.Timestamp.Before(start) || !d.Timestamp.Before(end) {
			continue
		}
		if branchID != "" && d.BranchID != branchID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func testIndex(t *testing.T) *catalog.Index {
	t.Helper()
	snapshot, err := catalog.BuildSnapshot([]catalog.Entry{
		{ProductID: "P1", Name: "Sourdough Loaf", Category: "bakery", Embedding: []float32{1, 0}},
		{ProductID: "P2", Name: "Seeded Bloomer", Category: "bakery", Embedding: []float32{0, 1}},
		{ProductID: "P3", Name: "Orange Juice", Category: "drinks", Embedding: []float32{0.6, 0.8}},
	}, 2)
	require.NoError(t, err)

	index := catalog.NewIndex()
	index.Swap(snapshot)
	return index
}

func sighting(productID, branch string, ts time.Time, confidence, chosenBy string) datastore.Detection {
	return datastore.Detection{
		ProductID:  productID,
		BranchID:   branch,
		Timestamp:  ts,
		Confidence: confidence,
		ChosenBy:   chosenBy,
	}
}

func abstention(ts time.Time, shortlist ...string) datastore.Detection {
	d := datastore.Detection{Timestamp: ts, ChosenBy: "abstained", Confidence: "low"}
	for _, id := range shortlist {
		d.Candidates = append(d.Candidates, datastore.Candidate{ProductID: id})
	}
	return d
}

func rowByProduct(t *testing.T, rows []Row, productID string) Row {
	t.Helper()
	for _, r := range rows {
		if r.ProductID == productID {
			return r
		}
	}
	t.Fatalf("no row for product %s", productID)
	return Row{}
}

func featureIndex(t *testing.T, name string) int {
	t.Helper()
	for i, n := range FeatureNames() {
		if n == name {
			return i
		}
	}
	t.Fatalf("no feature named %s", name)
	return -1
}

func TestBuildServingSetCoversWholeCatalog(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{rows: []datastore.Detection{
		sighting("P1", "branch-7", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
	}}

	e := NewEngineer(source, testIndex(t), 7)
	rows, err := e.BuildServingSet(asOf, "")
	require.NoError(t, err)

	require.Len(t, rows, 3, "every catalog product gets a row")

	sightings := featureIndex(t, "sighting_count")
	daysSince := featureIndex(t, "days_since_last_sighting")

	p1 := rowByProduct(t, rows, "P1")
	assert.InDelta(t, 1, p1.Features[sightings], 1e-9)
	assert.InDelta(t, 1, p1.Features[daysSince], 1e-9)

	p2 := rowByProduct(t, rows, "P2")
	assert.Zero(t, p2.Features[sightings])
	assert.InDelta(t, 7, p2.Features[daysSince], 1e-9, "unseen products saturate at the window length")
}

func TestBuildServingSetIsDeterministic(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{rows: []datastore.Detection{
		sighting("P1", "branch-7", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
		sighting("P1", "branch-9", asOf.Add(-48*time.Hour), "high", "oracle_confirmed"),
		abstention(asOf.Add(-12*time.Hour), "P1", "P3"),
	}}

	e := NewEngineer(source, testIndex(t), 7)
	first, err := e.BuildServingSet(asOf, "")
	require.NoError(t, err)
	second, err := e.BuildServingSet(asOf, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateRates(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{rows: []datastore.Detection{
		sighting("P1", "branch-7", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
		sighting("P1", "branch-9", asOf.Add(-48*time.Hour), "high", "oracle_confirmed"),
		sighting("P1", "branch-7", asOf.Add(-72*time.Hour), "low", "oracle_confirmed"),
		abstention(asOf.Add(-12*time.Hour), "P1", "P3"),
	}}

	e := NewEngineer(source, testIndex(t), 7)
	rows, err := e.BuildServingSet(asOf, "")
	require.NoError(t, err)

	p1 := rowByProduct(t, rows, "P1")
	assert.InDelta(t, 3, p1.Features[featureIndex(t, "sighting_count")], 1e-9)
	assert.InDelta(t, 2, p1.Features[featureIndex(t, "branch_count")], 1e-9)
	assert.InDelta(t, 2.0/3.0, p1.Features[featureIndex(t, "high_confidence_rate")], 1e-9)
	assert.InDelta(t, 2.0/3.0, p1.Features[featureIndex(t, "oracle_confirmed_rate")], 1e-9)
	assert.InDelta(t, 1.0/4.0, p1.Features[featureIndex(t, "ambiguity_rate")], 1e-9)

	// P3 never sighted but shortlisted in one abstention.
	p3 := rowByProduct(t, rows, "P3")
	assert.Zero(t, p3.Features[featureIndex(t, "sighting_count")])
	assert.InDelta(t, 1, p3.Features[featureIndex(t, "ambiguity_rate")], 1e-9)
}

func TestCategoryPriors(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{rows: []datastore.Detection{
		// All three confirmed sightings land in bakery.
		sighting("P1", "branch-7", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
		sighting("P1", "branch-9", asOf.Add(-48*time.Hour), "high", "oracle_confirmed"),
		sighting("P1", "branch-7", asOf.Add(-72*time.Hour), "low", "oracle_confirmed"),
		// The abstention charges bakery (via P1) and drinks (via P3).
		abstention(asOf.Add(-12*time.Hour), "P1", "P3"),
	}}

	e := NewEngineer(source, testIndex(t), 7)
	rows, err := e.BuildServingSet(asOf, "")
	require.NoError(t, err)

	share := featureIndex(t, "category_sighting_share")
	catAmbiguity := featureIndex(t, "category_ambiguity_rate")

	// Bakery holds all 3 of 3 sightings and 1 abstention charge.
	p1 := rowByProduct(t, rows, "P1")
	assert.InDelta(t, 1.0, p1.Features[share], 1e-9)
	assert.InDelta(t, 1.0/4.0, p1.Features[catAmbiguity], 1e-9)

	// P2 was never sighted yet inherits the bakery priors.
	p2 := rowByProduct(t, rows, "P2")
	assert.InDelta(t, 1.0, p2.Features[share], 1e-9)
	assert.InDelta(t, 1.0/4.0, p2.Features[catAmbiguity], 1e-9)

	// Drinks saw no confirmed sightings and one abstention charge.
	p3 := rowByProduct(t, rows, "P3")
	assert.Zero(t, p3.Features[share])
	assert.InDelta(t, 1.0, p3.Features[catAmbiguity], 1e-9)
}

func TestBuildTrainingSetLabels(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	source := &fakeSource{rows: []datastore.Detection{
		// Feature window: [asOf-14d, asOf-7d).
		sighting("P1", "branch-7", asOf.Add(-window).Add(-24*time.Hour), "high", "retrieval_only"),
		sighting("P2", "branch-7", asOf.Add(-window).Add(-48*time.Hour), "high", "retrieval_only"),
		// Label window: [asOf-7d, asOf). Only P1 reappears.
		sighting("P1", "branch-7", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
	}}

	e := NewEngineer(source, testIndex(t), 7)
	rows, err := e.BuildTrainingSet(asOf, "")
	require.NoError(t, err)

	assert.InDelta(t, 1, rowByProduct(t, rows, "P1").Label, 1e-9)
	assert.Zero(t, rowByProduct(t, rows, "P2").Label)
	assert.Zero(t, rowByProduct(t, rows, "P3").Label)

	// Feature aggregation must not leak label-window rows.
	sightings := featureIndex(t, "sighting_count")
	assert.InDelta(t, 1, rowByProduct(t, rows, "P1").Features[sightings], 1e-9)
}

func TestBuildFailsWithoutCatalogSnapshot(t *testing.T) {
	e := NewEngineer(&fakeSource{}, catalog.NewIndex(), 7)
	_, err := e.BuildServingSet(time.Now(), "")
	require.Error(t, err)
}

func TestBranchFilterIsForwarded(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{rows: []datastore.Detection{
		sighting("P1", "branch-7", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
		sighting("P1", "branch-9", asOf.Add(-24*time.Hour), "high", "retrieval_only"),
	}}

	e := NewEngineer(source, testIndex(t), 7)
	rows, err := e.BuildServingSet(asOf, "branch-9")
	require.NoError(t, err)

	p1 := rowByProduct(t, rows, "P1")
	assert.InDelta(t, 1, p1.Features[featureIndex(t, "sighting_count")], 1e-9)
}
