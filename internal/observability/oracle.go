package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OracleMetrics tracks confirmation oracle calls.
type OracleMetrics struct {
	CallsTotal   *prometheus.CounterVec
	RetriesTotal prometheus.Counter
	CallDuration prometheus.Histogram
}

// NewOracleMetrics creates and registers the oracle collectors.
func NewOracleMetrics(registry *prometheus.Registry) (*OracleMetrics, error) {
	m := &OracleMetrics{
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_calls_total",
			Help: "Oracle confirmation calls, by result (picked, no_match, error).",
		}, []string{"result"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_retries_total",
			Help: "Retry attempts after transient oracle failures.",
		}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_call_duration_seconds",
			Help:    "Oracle round trip time per attempt.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	collectors := []prometheus.Collector{m.CallsTotal, m.RetriesTotal, m.CallDuration}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, registrationError("oracle", err)
		}
	}
	return m, nil
}
