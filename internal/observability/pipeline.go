package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks identification pipeline outcomes.
type PipelineMetrics struct {
	CropsTotal     *prometheus.CounterVec
	DecisionsTotal *prometheus.CounterVec
	CropDuration   prometheus.Histogram
	ShortlistSize  prometheus.Histogram
	TopSimilarity  prometheus.Histogram
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		CropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_crops_total",
			Help: "Crops handed to the pipeline, by outcome stage.",
		}, []string{"stage"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_decisions_total",
			Help: "Final identification decisions, by chosen_by.",
		}, []string{"chosen_by"}),
		CropDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_crop_duration_seconds",
			Help:    "End to end processing time per crop.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ShortlistSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_shortlist_size",
			Help:    "Candidate shortlist size after similarity filtering.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		TopSimilarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_top_similarity",
			Help:    "Cosine similarity of the top ranked candidate.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	collectors := []prometheus.Collector{
		m.CropsTotal, m.DecisionsTotal, m.CropDuration, m.ShortlistSize, m.TopSimilarity,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, registrationError("pipeline", err)
		}
	}
	return m, nil
}
