package metrics

import "github.com/prometheus/client_golang/prometheus"

// PricingMetrics counts which tier priced each line.
type PricingMetrics struct {
	resolutions *prometheus.CounterVec
	clamped     prometheus.Counter
}

func NewPricingMetrics(reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		return &PricingMetrics{}
	}
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_resolutions_total",
		Help: "Priced lines by winning pricing tier.",
	}, []string{"tier"})
	clamped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pricing_clamped_total",
		Help: "Computed prices that were negative and clamped to zero.",
	})
	reg.MustRegister(resolutions, clamped)
	return &PricingMetrics{resolutions: resolutions, clamped: clamped}
}

func (m *PricingMetrics) ObserveResolution(tier string, clamped bool) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(tier)).Inc()
	if clamped {
		m.clamped.Inc()
	}
}
