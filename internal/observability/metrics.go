// Package observability wires the application's Prometheus collectors behind
// a private registry so tests can create isolated instances.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// Metrics holds all application metrics behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	Pipeline *PipelineMetrics
	Oracle   *OracleMetrics
	Training *TrainingMetrics
}

// NewMetrics creates a new metrics instance with all collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	pipeline, err := NewPipelineMetrics(registry)
	if err != nil {
		return nil, err
	}
	oracle, err := NewOracleMetrics(registry)
	if err != nil {
		return nil, err
	}
	training, err := NewTrainingMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry: registry,
		Pipeline: pipeline,
		Oracle:   oracle,
		Training: training,
	}, nil
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func registrationError(name string, err error) error {
	return errors.Newf("registering %s collectors: %w", name, err).
		Category(errors.CategoryConfiguration).
		Build()
}
