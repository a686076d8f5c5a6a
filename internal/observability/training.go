package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TrainingMetrics tracks the prediction refresh loop.
type TrainingMetrics struct {
	RefreshesTotal  *prometheus.CounterVec
	TrainDuration   prometheus.Histogram
	LastAUC         prometheus.Gauge
	TrainingSamples prometheus.Gauge
}

// NewTrainingMetrics creates and registers the training collectors.
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "training_refreshes_total",
			Help: "Prediction refresh runs, by outcome (completed, skipped, failed).",
		}, []string{"outcome"}),
		TrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Wall clock time of one training run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		LastAUC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "training_last_auc",
			Help: "Held out ROC AUC of the most recently trained model.",
		}),
		TrainingSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "training_sample_count",
			Help: "Sample count used by the most recent training run.",
		}),
	}

	collectors := []prometheus.Collector{
		m.RefreshesTotal, m.TrainDuration, m.LastAUC, m.TrainingSamples,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, registrationError("training", err)
		}
	}
	return m, nil
}
