package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Production — счётчики проведения партий. Нулевой указатель допустим: методы ничего не делают.
type Production struct {
	Finalized *prometheus.CounterVec
	Rejected  *prometheus.CounterVec
	Replayed  prometheus.Counter
	Variance  prometheus.Histogram
}

func NewProduction(reg prometheus.Registerer) *Production {
	m := &Production{
		Finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factory",
			Name:      "batches_finalized_total",
			Help:      "Finalized production batches by product and status.",
		}, []string{"product", "status"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factory",
			Name:      "batches_rejected_total",
			Help:      "Batches that could not be finalized, by reason.",
		}, []string{"reason"}),
		Replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factory",
			Name:      "batches_replayed_total",
			Help:      "Finalize requests answered from an earlier record with the same request key.",
		}),
		Variance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "factory",
			Name:      "batch_variance",
			Help:      "Planned minus actual batch cost.",
			Buckets:   []float64{-1000, -250, -100, -25, 0, 25, 100, 250, 1000},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Finalized, m.Rejected, m.Replayed, m.Variance)
	}
	return m
}

func (m *Production) ObserveFinalized(product, status string, variance decimal.Decimal) {
	if m == nil {
		return
	}
	m.Finalized.WithLabelValues(product, status).Inc()
	m.Variance.Observe(variance.InexactFloat64())
}

func (m *Production) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Production) ObserveReplayed() {
	if m == nil {
		return
	}
	m.Replayed.Inc()
}
