package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks ledger postings and per-store lock contention.
type LedgerMetrics struct {
	postings *prometheus.CounterVec
	lockWait prometheus.Histogram
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Ledger posting attempts by transaction type and outcome.",
	}, []string{"type", "outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_lock_wait_seconds",
		Help:    "Time spent waiting for the per-store ledger lock.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})
	reg.MustRegister(postings, lockWait)
	return &LedgerMetrics{postings: postings, lockWait: lockWait}
}

// ObservePosting counts one posting attempt. Outcome is "posted", "busy", "rejected" or "failed".
func (m *LedgerMetrics) ObservePosting(txType, outcome string) {
	if m == nil || m.postings == nil {
		return
	}
	m.postings.WithLabelValues(normalizeLabel(txType), normalizeLabel(outcome)).Inc()
}

// ObserveLockWait records how long a posting waited for its store lock.
func (m *LedgerMetrics) ObserveLockWait(d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
