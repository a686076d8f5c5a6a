// Package trainer fits the reduction predictor: a regularized logistic
// regression over the aggregated feature rows, with a held-out ROC AUC
// recorded alongside every trained version.
package trainer

import (
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/features"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
)

// holdoutSeed keeps the train/holdout split reproducible so two runs over the
// same rows report the same metric.
const holdoutSeed = 20260801

var logger *slog.Logger

func init() {
	logger = logging.ForService("trainer")
}

// Model is a fully trained, immutable predictor. Features are standardized
// with the training-time means and scales before scoring.
type Model struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
}

// Predict returns the reduction probability for one feature vector.
func (m *Model) Predict(featureVector []float64) (float64, error) {
	if len(featureVector) != len(m.Weights) {
		return 0, errors.DimensionMismatchError(len(featureVector), len(m.Weights))
	}
	z := m.Bias
	for i, x := range featureVector {
		z += m.Weights[i] * (x - m.Means[i]) / m.Scales[i]
	}
	return sigmoid(z), nil
}

// Trainer fits model versions from labeled feature rows.
type Trainer struct {
	cfg conf.TrainingConfig
}

// New returns a Trainer with the given policy.
func New(cfg conf.TrainingConfig) *Trainer {
	return &Trainer{cfg: cfg}
}

// Train fits a new model version on the given rows. It refuses to run below
// the configured sample minimum and when the labels are single-class, since
// neither produces a model worth serving.
func (t *Trainer) Train(rows []features.Row) (*Model, *datastore.ModelRecord, error) {
	if len(rows) < t.cfg.MinSamples {
		return nil, nil, errors.InsufficientDataError(len(rows), t.cfg.MinSamples)
	}

	positives := 0
	for i := range rows {
		if rows[i].Label > 0 {
			positives++
		}
	}
	if positives == 0 || positives == len(rows) {
		return nil, nil, errors.Newf("training rows are single-class (%d positives of %d)", positives, len(rows)).
			Category(errors.CategoryTraining).
			Build()
	}

	train, holdout := split(rows, t.cfg.HoldoutFraction)

	model := fit(train, t.cfg.Epochs, t.cfg.LearningRate)
	auc := holdoutAUC(model, holdout)

	params, err := json.Marshal(model)
	if err != nil {
		return nil, nil, errors.Newf("serializing model parameters: %w", err).
			Category(errors.CategoryTraining).
			Build()
	}
	importance, err := json.Marshal(featureImportance(model))
	if err != nil {
		return nil, nil, errors.Newf("serializing feature importance: %w", err).
			Category(errors.CategoryTraining).
			Build()
	}

	record := &datastore.ModelRecord{
		VersionID:           uuid.New().String(),
		TrainedAt:           time.Now(),
		TrainingSampleCount: len(rows),
		AUC:                 auc,
		FeatureImportance:   string(importance),
		Parameters:          params,
	}

	logger.Info("model trained",
		"version", record.VersionID,
		"samples", len(rows),
		"positives", positives,
		"auc", auc)
	return model, record, nil
}

// ShouldRetrain evaluates the retrain policy: retrain when there is no usable
// model yet, when the active one is older than the retrain interval, or when
// the new samples since it was trained exceed the configured delta. The
// conditions are independent; any one of them suffices.
func (t *Trainer) ShouldRetrain(current *datastore.ModelRecord, newSamples int64, now time.Time) bool {
	if current == nil {
		return true
	}
	if now.Sub(current.TrainedAt) >= t.cfg.RetrainInterval {
		return true
	}
	return newSamples > int64(t.cfg.SampleDelta)
}

// LoadModel deserializes a stored model version.
func LoadModel(record *datastore.ModelRecord) (*Model, error) {
	var model Model
	if err := json.Unmarshal(record.Parameters, &model); err != nil {
		return nil, errors.Newf("deserializing model version %s: %w", record.VersionID, err).
			Category(errors.CategoryPrediction).
			Build()
	}
	if len(model.Weights) == 0 || len(model.Weights) != len(model.Means) || len(model.Weights) != len(model.Scales) {
		return nil, errors.Newf("model version %s has inconsistent parameters", record.VersionID).
			Category(errors.CategoryPrediction).
			Build()
	}
	return &model, nil
}

// split shuffles rows with a fixed seed and carves off the holdout fraction.
// At least one row stays on each side.
func split(rows []features.Row, fraction float64) (train, holdout []features.Row) {
	shuffled := make([]features.Row, len(rows))
	copy(shuffled, rows)
	rng := rand.New(rand.NewSource(holdoutSeed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := int(float64(len(shuffled)) * fraction)
	if n < 1 {
		n = 1
	}
	if n >= len(shuffled) {
		n = len(shuffled) - 1
	}
	return shuffled[n:], shuffled[:n]
}

// fit runs full-batch gradient descent on the standardized design matrix.
func fit(rows []features.Row, epochs int, learningRate float64) *Model {
	n := len(rows)
	d := len(rows[0].Features)

	means, scales := standardization(rows)

	x := mat.NewDense(n, d, nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range rows {
		for j, v := range row.Features {
			x.Set(i, j, (v-means[j])/scales[j])
		}
		y.SetVec(i, row.Label)
	}

	weights := mat.NewVecDense(d, nil)
	var bias float64

	grad := mat.NewVecDense(d, nil)
	z := mat.NewVecDense(n, nil)
	for epoch := 0; epoch < epochs; epoch++ {
		// residual = sigmoid(Xw + b) - y
		z.MulVec(x, weights)
		var biasGrad float64
		for i := 0; i < n; i++ {
			z.SetVec(i, sigmoid(z.AtVec(i)+bias)-y.AtVec(i))
			biasGrad += z.AtVec(i)
		}

		grad.MulVec(x.T(), z)
		grad.ScaleVec(learningRate/float64(n), grad)
		weights.SubVec(weights, grad)
		bias -= learningRate * biasGrad / float64(n)
	}

	model := &Model{
		FeatureNames: features.FeatureNames(),
		Weights:      make([]float64, d),
		Bias:         bias,
		Means:        means,
		Scales:       scales,
	}
	copy(model.Weights, weights.RawVector().Data)
	return model
}

// standardization computes per-column means and scales. Constant columns get
// unit scale so standardization stays finite.
func standardization(rows []features.Row) (means, scales []float64) {
	d := len(rows[0].Features)
	column := make([]float64, len(rows))
	means = make([]float64, d)
	scales = make([]float64, d)

	for j := 0; j < d; j++ {
		for i := range rows {
			column[i] = rows[i].Features[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[j] = mean
		scales[j] = std
	}
	return means, scales
}

// holdoutAUC scores the holdout rows and integrates the ROC curve. A holdout
// that turned out single-class has no curve; 0.5 records "uninformative".
func holdoutAUC(model *Model, holdout []features.Row) float64 {
	type scored struct {
		score    float64
		positive bool
	}
	items := make([]scored, 0, len(holdout))
	positives := 0
	for i := range holdout {
		z := model.Bias
		for j, x := range holdout[i].Features {
			z += model.Weights[j] * (x - model.Means[j]) / model.Scales[j]
		}
		positive := holdout[i].Label > 0
		if positive {
			positives++
		}
		items = append(items, scored{score: sigmoid(z), positive: positive})
	}
	if positives == 0 || positives == len(items) {
		return 0.5
	}

	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })

	scores := make([]float64, len(items))
	classes := make([]bool, len(items))
	for i, it := range items {
		scores[i] = it.score
		classes[i] = it.positive
	}

	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// featureImportance normalizes absolute weights into shares per feature.
func featureImportance(model *Model) map[string]float64 {
	total := 0.0
	for _, w := range model.Weights {
		total += math.Abs(w)
	}
	importance := make(map[string]float64, len(model.Weights))
	for i, name := range model.FeatureNames {
		if total > 0 {
			importance[name] = math.Abs(model.Weights[i]) / total
		} else {
			importance[name] = 0
		}
	}
	return importance
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
