package settlement

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records settlement results. A nil *Metrics is a no-op.
type Metrics struct {
	settlements *prometheus.CounterVec
	priceImpact *prometheus.HistogramVec
}

// NewMetrics registers the settlement collectors with reg. Collectors that are
// already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pumpcurve",
		Name:      "settlements_total",
		Help:      "Settlement attempts by direction and result.",
	}, []string{"direction", "result"})

	priceImpact := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pumpcurve",
		Name:      "price_impact_bps",
		Help:      "Absolute price impact of ready settlements in basis points.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"direction"})

	var err error
	if settlements, err = register(reg, settlements); err != nil {
		return nil, err
	}
	if priceImpact, err = register(reg, priceImpact); err != nil {
		return nil, err
	}

	return &Metrics{settlements: settlements, priceImpact: priceImpact}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(direction, result string, impactBps int32) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(direction, result).Inc()
	if result != "ready" {
		return
	}
	if impactBps < 0 {
		impactBps = -impactBps
	}
	m.priceImpact.WithLabelValues(direction).Observe(float64(impactBps))
}
