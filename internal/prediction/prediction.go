// Package prediction serves reduction probabilities and runs the refresh
// loop that retrains the predictor as detection evidence accumulates. The
// active model lives in an atomic cell: requests read whichever version is
// current and a completed refresh swaps in the next one.
package prediction

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/features"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/observability"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/trainer"
)

// Store is the slice of the detection store the prediction service uses.
type Store interface {
	SaveModel(record *datastore.ModelRecord) error
	GetLatestModel(minSampleCount int) (*datastore.ModelRecord, error)
	SavePredictions(records []datastore.PredictionRecord) error
	GetLatestPrediction(productID string) (*datastore.PredictionRecord, error)
	GetPredictionHistory(productID string, limit int) ([]datastore.PredictionRecord, error)
	CountDetectionsSince(since time.Time) (int64, error)
}

// ActiveModel pairs a deserialized model with its stored record.
type ActiveModel struct {
	Model  *trainer.Model
	Record *datastore.ModelRecord
}

// Probability is one served prediction.
type Probability struct {
	ProductID      string    `json:"product_id"`
	Probability    float64   `json:"probability"`
	ModelVersionID string    `json:"model_version_id"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Service serves probabilities and coordinates refresh runs. Reads are served
// from the newest stored predictions through a short-lived cache; at most one
// refresh runs at a time.
type Service struct {
	settings *conf.Settings
	store    Store
	engineer *features.Engineer
	trainer  *trainer.Trainer
	metrics  *observability.Metrics
	logger   *slog.Logger

	active     atomic.Pointer[ActiveModel]
	cache      *gocache.Cache
	refreshing atomic.Bool
}

// NewService assembles the prediction service. metrics may be nil.
func NewService(settings *conf.Settings, store Store, engineer *features.Engineer, tr *trainer.Trainer, metrics *observability.Metrics) *Service {
	ttl := settings.Prediction.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		settings: settings,
		store:    store,
		engineer: engineer,
		trainer:  tr,
		metrics:  metrics,
		logger:   logging.ForService("prediction"),
		cache:    gocache.New(ttl, 2*ttl),
	}
}

// LoadActiveModel restores the newest usable model version from the store.
// Having no stored model yet is a normal cold start, not an error.
func (s *Service) LoadActiveModel() error {
	record, err := s.store.GetLatestModel(s.settings.Training.MinSamples)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Info("no stored model yet, serving disabled until first refresh")
			return nil
		}
		return err
	}
	model, err := trainer.LoadModel(record)
	if err != nil {
		return err
	}
	s.active.Store(&ActiveModel{Model: model, Record: record})
	s.logger.Info("active model restored", "version", record.VersionID, "auc", record.AUC)
	return nil
}

// Active returns the currently served model, or nil before the first
// successful refresh on a cold start.
func (s *Service) Active() *ActiveModel {
	return s.active.Load()
}

// GetProbability returns the current reduction probability for a product.
func (s *Service) GetProbability(productID string) (*Probability, error) {
	if cached, ok := s.cache.Get(productID); ok {
		p := cached.(Probability)
		return &p, nil
	}

	record, err := s.store.GetLatestPrediction(productID)
	if err != nil {
		return nil, err
	}

	p := Probability{
		ProductID:      record.ProductID,
		Probability:    record.Probability,
		ModelVersionID: record.ModelVersionID,
		ComputedAt:     record.ComputedAt,
	}
	s.cache.SetDefault(productID, p)
	return &p, nil
}

// GetHistory returns current and superseded predictions for a product,
// newest first.
func (s *Service) GetHistory(productID string, limit int) ([]Probability, error) {
	records, err := s.store.GetPredictionHistory(productID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Probability, len(records))
	for i, r := range records {
		out[i] = Probability{
			ProductID:      r.ProductID,
			Probability:    r.Probability,
			ModelVersionID: r.ModelVersionID,
			ComputedAt:     r.ComputedAt,
		}
	}
	return out, nil
}

// TriggerRefresh starts a refresh in the background. A refresh already in
// flight is a conflict; the caller retries later rather than queueing.
func (s *Service) TriggerRefresh(force bool) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return errors.Newf("a prediction refresh is already in flight").
			Category(errors.CategoryConflict).
			Build()
	}
	go func() {
		defer s.refreshing.Store(false)
		if err := s.runRefresh(context.Background(), force); err != nil {
			s.logger.Error("background refresh failed", "error", err)
		}
	}()
	return nil
}

// RefreshNow runs a refresh synchronously, for the CLI and the loop.
func (s *Service) RefreshNow(ctx context.Context, force bool) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return errors.Newf("a prediction refresh is already in flight").
			Category(errors.CategoryConflict).
			Build()
	}
	defer s.refreshing.Store(false)
	return s.runRefresh(ctx, force)
}

// RunLoop periodically evaluates the retrain policy until ctx is cancelled.
// The check cadence is decoupled from the retrain interval so a sample-delta
// trigger fires without waiting out the interval.
func (s *Service) RunLoop(ctx context.Context, checkEvery time.Duration) {
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshNow(ctx, false); err != nil {
				if !errors.IsCategory(err, errors.CategoryConflict) {
					s.logger.Error("scheduled refresh failed", "error", err)
				}
			}
		}
	}
}

// runRefresh executes one refresh: evaluate the policy, retrain, persist the
// version, recompute all probabilities, and only then swap the active model.
// A failure at any step leaves the previous model serving.
func (s *Service) runRefresh(ctx context.Context, force bool) error {
	now := time.Now()

	if !force {
		current := s.active.Load()
		var currentRecord *datastore.ModelRecord
		newSamples := int64(0)
		if current != nil {
			currentRecord = current.Record
			count, err := s.store.CountDetectionsSince(current.Record.TrainedAt)
			if err != nil {
				return err
			}
			newSamples = count
		}
		if !s.trainer.ShouldRetrain(currentRecord, newSamples, now) {
			s.countRefresh("skipped")
			s.logger.Debug("retrain policy not met, skipping refresh")
			return nil
		}
	}

	start := time.Now()

	rows, err := s.engineer.BuildTrainingSet(now, "")
	if err != nil {
		s.countRefresh("failed")
		return err
	}

	model, record, err := s.trainer.Train(rows)
	if err != nil {
		s.countRefresh("failed")
		return err
	}

	if err := s.store.SaveModel(record); err != nil {
		s.countRefresh("failed")
		return err
	}

	if err := ctx.Err(); err != nil {
		s.countRefresh("failed")
		return errors.New(err).Category(errors.CategoryCancellation).Build()
	}

	servingRows, err := s.engineer.BuildServingSet(now, "")
	if err != nil {
		s.countRefresh("failed")
		return err
	}

	predictions := make([]datastore.PredictionRecord, 0, len(servingRows))
	for i := range servingRows {
		p, err := model.Predict(servingRows[i].Features)
		if err != nil {
			s.countRefresh("failed")
			return err
		}
		predictions = append(predictions, datastore.PredictionRecord{
			ProductID:      servingRows[i].ProductID,
			Probability:    p,
			ModelVersionID: record.VersionID,
			ComputedAt:     now,
		})
	}
	if err := s.store.SavePredictions(predictions); err != nil {
		s.countRefresh("failed")
		return err
	}

	s.active.Store(&ActiveModel{Model: model, Record: record})
	s.cache.Flush()

	if s.metrics != nil {
		s.metrics.Training.TrainDuration.Observe(time.Since(start).Seconds())
		s.metrics.Training.LastAUC.Set(record.AUC)
		s.metrics.Training.TrainingSamples.Set(float64(record.TrainingSampleCount))
	}
	s.countRefresh("completed")

	s.logger.Info("prediction refresh completed",
		"version", record.VersionID,
		"samples", record.TrainingSampleCount,
		"auc", record.AUC,
		"predictions", len(predictions),
		"took", time.Since(start))
	return nil
}

func (s *Service) countRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.Training.RefreshesTotal.WithLabelValues(outcome).Inc()
	}
}
