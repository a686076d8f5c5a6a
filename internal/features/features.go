// Package features aggregates detection history into per-product feature
// vectors for the reduction predictor. Aggregation is a pure function of the
// rows it is given: running it twice over the same window yields identical
// output.
package features

import (
	"math"
	"time"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// featureNames enumerates the feature vector layout. Order is part of the
// model contract: a trained model is only valid against the layout it was
// trained with.
var featureNames = []string{
	"sighting_count",
	"branch_count",
	"high_confidence_rate",
	"oracle_confirmed_rate",
	"ambiguity_rate",
	"days_since_last_sighting",
	"category_sighting_share",
	"category_ambiguity_rate",
}

// FeatureNames returns the feature vector layout, in column order.
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// Row is one product's feature vector. Label is meaningful only for rows
// produced by BuildTrainingSet.
type Row struct {
	ProductID string
	Features  []float64
	Label     float64
}

// DetectionSource is the slice of the detection store aggregation reads from.
type DetectionSource interface {
	GetDetectionsInRange(start, end time.Time, branchID string) ([]datastore.Detection, error)
}

// Engineer builds feature matrices from the detection store and the catalog.
// Every catalog product gets a row, zero-sighting products included; absence
// of evidence is itself a signal for the predictor.
type Engineer struct {
	source  DetectionSource
	catalog *catalog.Index
	window  time.Duration
}

// NewEngineer returns an Engineer with a window of windowDays days.
func NewEngineer(source DetectionSource, index *catalog.Index, windowDays int) *Engineer {
	return &Engineer{
		source:  source,
		catalog: index,
		window:  time.Duration(windowDays) * 24 * time.Hour,
	}
}

// BuildTrainingSet produces labeled rows as of asOf: features aggregate the
// window ending one window before asOf, and a product is labeled positive
// when it was sighted in the window that follows.
func (e *Engineer) BuildTrainingSet(asOf time.Time, branchID string) ([]Row, error) {
	featureEnd := asOf.Add(-e.window)
	featureStart := featureEnd.Add(-e.window)

	rows, err := e.build(featureStart, featureEnd, branchID)
	if err != nil {
		return nil, err
	}

	labelRows, err := e.source.GetDetectionsInRange(featureEnd, asOf, branchID)
	if err != nil {
		return nil, err
	}
	sighted := make(map[string]bool, len(labelRows))
	for i := range labelRows {
		if labelRows[i].ProductID != "" {
			sighted[labelRows[i].ProductID] = true
		}
	}

	for i := range rows {
		if sighted[rows[i].ProductID] {
			rows[i].Label = 1
		}
	}
	return rows, nil
}

// BuildServingSet produces unlabeled rows over the window ending at asOf, for
// scoring with an already trained model.
func (e *Engineer) BuildServingSet(asOf time.Time, branchID string) ([]Row, error) {
	return e.build(asOf.Add(-e.window), asOf, branchID)
}

type accumulator struct {
	sightings      int
	highConfidence int
	oracleChosen   int
	ambiguous      int
	branches       map[string]bool
	lastSighting   time.Time
}

// categoryAccumulator collects category-level priors shared by every product
// in the category.
type categoryAccumulator struct {
	sightings int
	ambiguous int
}

func (e *Engineer) build(start, end time.Time, branchID string) ([]Row, error) {
	snapshot := e.catalog.Active()
	if snapshot == nil {
		return nil, errors.Newf("no active catalog snapshot").
			Category(errors.CategoryCatalog).
			Build()
	}

	detections, err := e.source.GetDetectionsInRange(start, end, branchID)
	if err != nil {
		return nil, err
	}

	acc := make(map[string]*accumulator, snapshot.Len())
	catAcc := make(map[string]*categoryAccumulator)
	for i := 0; i < snapshot.Len(); i++ {
		entry := snapshot.Entry(i)
		acc[entry.ProductID] = &accumulator{branches: make(map[string]bool)}
		if _, ok := catAcc[entry.Category]; !ok {
			catAcc[entry.Category] = &categoryAccumulator{}
		}
	}

	totalSightings := 0
	for i := range detections {
		d := &detections[i]
		if d.ChosenBy == string(detection.ChosenByAbstention) {
			// An abstention charges ambiguity to every shortlisted product
			// and to that product's category.
			for j := range d.Candidates {
				if a, ok := acc[d.Candidates[j].ProductID]; ok {
					a.ambiguous++
					if entry, found := snapshot.Lookup(d.Candidates[j].ProductID); found {
						catAcc[entry.Category].ambiguous++
					}
				}
			}
			continue
		}
		a, ok := acc[d.ProductID]
		if !ok {
			// Sighting of a product no longer in the catalog.
			continue
		}
		a.sightings++
		totalSightings++
		if entry, found := snapshot.Lookup(d.ProductID); found {
			catAcc[entry.Category].sightings++
		}
		a.branches[d.BranchID] = true
		if d.Confidence == string(detection.ConfidenceHigh) {
			a.highConfidence++
		}
		if d.ChosenBy == string(detection.ChosenByOracle) {
			a.oracleChosen++
		}
		if d.Timestamp.After(a.lastSighting) {
			a.lastSighting = d.Timestamp
		}
	}

	windowDays := e.window.Hours() / 24

	rows := make([]Row, 0, snapshot.Len())
	for i := 0; i < snapshot.Len(); i++ {
		entry := snapshot.Entry(i)
		productID := entry.ProductID
		a := acc[productID]
		cat := catAcc[entry.Category]

		var highRate, oracleRate float64
		if a.sightings > 0 {
			highRate = float64(a.highConfidence) / float64(a.sightings)
			oracleRate = float64(a.oracleChosen) / float64(a.sightings)
		}

		var ambiguityRate float64
		if a.sightings+a.ambiguous > 0 {
			ambiguityRate = float64(a.ambiguous) / float64(a.sightings+a.ambiguous)
		}

		// Category priors: the category's share of all window sightings and
		// how often shortlists in the category ended in abstention.
		var categoryShare, categoryAmbiguity float64
		if totalSightings > 0 {
			categoryShare = float64(cat.sightings) / float64(totalSightings)
		}
		if cat.sightings+cat.ambiguous > 0 {
			categoryAmbiguity = float64(cat.ambiguous) / float64(cat.sightings+cat.ambiguous)
		}

		// Products never sighted in the window saturate at the window length.
		daysSince := windowDays
		if !a.lastSighting.IsZero() {
			daysSince = math.Min(windowDays, end.Sub(a.lastSighting).Hours()/24)
		}

		rows = append(rows, Row{
			ProductID: productID,
			Features: []float64{
				float64(a.sightings),
				float64(len(a.branches)),
				highRate,
				oracleRate,
				ambiguityRate,
				daysSince,
				categoryShare,
				categoryAmbiguity,
			},
		})
	}
	return rows, nil
}
