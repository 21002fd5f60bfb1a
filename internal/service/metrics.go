package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Harshitk-cp/marginal/internal/inference"
)

// Query outcomes recorded in marginal_queries_total.
const (
	OutcomeOK            = "ok"
	OutcomeInvalid       = "invalid"
	OutcomeContradictory = "contradictory"
	OutcomeTimeout       = "timeout"
	OutcomeError         = "error"
)

// Metrics holds the inference collectors. A nil *Metrics records nothing.
type Metrics struct {
	queries       *prometheus.CounterVec
	duration      prometheus.Histogram
	steps         prometheus.Histogram
	maxFactorSize prometheus.Histogram
}

// NewMetrics registers the inference collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginal_queries_total",
			Help: "Inference queries by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marginal_query_duration_seconds",
			Help:    "Wall time of a single inference query.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
		}),
		steps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marginal_elimination_steps",
			Help:    "Variables eliminated per query.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		maxFactorSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marginal_max_factor_size",
			Help:    "Largest intermediate factor table per query.",
			Buckets: prometheus.ExponentialBuckets(2, 4, 12),
		}),
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration, stats *inference.Stats) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if stats != nil {
		m.steps.Observe(float64(stats.Steps))
		m.maxFactorSize.Observe(float64(stats.MaxFactorSize))
	}
}
