package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsCountsPostings(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.ObservePosting("sale", "posted")
	m.ObservePosting("sale", "posted")
	m.ObservePosting("deposit", "busy")
	m.ObserveLockWait(20 * time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "ledger_postings_total")
	require.NotNil(t, mf)
	var posted, busy float64
	for _, metric := range mf.GetMetric() {
		switch {
		case matchesLabel(metric.GetLabel(), "type", "sale") && matchesLabel(metric.GetLabel(), "outcome", "posted"):
			posted = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "type", "deposit") && matchesLabel(metric.GetLabel(), "outcome", "busy"):
			busy = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), posted)
	assert.Equal(t, float64(1), busy)

	wait := findMetricFamily(mfs, "ledger_lock_wait_seconds")
	require.NotNil(t, wait)
	assert.Equal(t, uint64(1), wait.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestNilMetricsAreSafe(t *testing.T) {
	var ledger *LedgerMetrics
	ledger.ObservePosting("sale", "posted")
	ledger.ObserveLockWait(time.Second)

	var pricing *PricingMetrics
	pricing.ObserveResolution("base_discount", true)

	var receivables *ReceivablesMetrics
	receivables.SetSnapshot(ReceivablesSnapshot{TotalOutstanding: 1})

	var relay *OutboxMetrics
	relay.Observe("order_confirmed", "published")

	NewLedgerMetrics(nil).ObservePosting("sale", "posted")
	NewReceivablesMetrics(nil).SetSnapshot(ReceivablesSnapshot{})
}

func TestPricingMetricsCountsTiersAndClamps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPricingMetrics(reg)
	m.ObserveResolution("brand_discount", false)
	m.ObserveResolution("special_price", true)

	assert.Equal(t, 1.0, sample(t, reg, "pricing_resolutions_total", "tier", "brand_discount").GetCounter().GetValue())
	assert.Equal(t, 1.0, sample(t, reg, "pricing_clamped_total").GetCounter().GetValue())
}

func TestReceivablesMetricsSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReceivablesMetrics(reg)
	m.SetSnapshot(ReceivablesSnapshot{TotalOutstanding: 150_000, OverdueAmount: 100_000, StoresOverLimit: 2, StoresOverdue: 1})

	mfs, err := reg.Gather()
	require.NoError(t, err)

	total := findMetricFamily(mfs, "receivables_total_outstanding")
	require.NotNil(t, total)
	assert.Equal(t, float64(150_000), total.GetMetric()[0].GetGauge().GetValue())

	overLimit := findMetricFamily(mfs, "receivables_stores_over_limit")
	require.NotNil(t, overLimit)
	assert.Equal(t, float64(2), overLimit.GetMetric()[0].GetGauge().GetValue())
}
