package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReceivablesMetrics exports the latest fleet receivables snapshot as gauges.
type ReceivablesMetrics struct {
	totalOutstanding prometheus.Gauge
	overdueAmount    prometheus.Gauge
	creditBalance    prometheus.Gauge
	storesWithDebt   prometheus.Gauge
	storesOverLimit  prometheus.Gauge
	storesOverdue    prometheus.Gauge
}

// ReceivablesSnapshot is the set of values published by SetSnapshot.
type ReceivablesSnapshot struct {
	TotalOutstanding int64
	OverdueAmount    int64
	CreditBalance    int64
	StoresWithDebt   int
	StoresOverLimit  int
	StoresOverdue    int
}

func NewReceivablesMetrics(reg prometheus.Registerer) *ReceivablesMetrics {
	if reg == nil {
		return &ReceivablesMetrics{}
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	m := &ReceivablesMetrics{
		totalOutstanding: gauge("receivables_total_outstanding", "Sum of positive store balances."),
		overdueAmount:    gauge("receivables_overdue_amount", "Sum of balances of overdue stores."),
		creditBalance:    gauge("receivables_credit_balance", "Sum of negative store balances (prepaid credit)."),
		storesWithDebt:   gauge("receivables_stores_with_debt", "Stores with a positive balance."),
		storesOverLimit:  gauge("receivables_stores_over_limit", "Stores whose balance exceeds the credit limit."),
		storesOverdue:    gauge("receivables_stores_overdue", "Stores past their payment term with a positive balance."),
	}
	reg.MustRegister(m.totalOutstanding, m.overdueAmount, m.creditBalance, m.storesWithDebt, m.storesOverLimit, m.storesOverdue)
	return m
}

func (m *ReceivablesMetrics) SetSnapshot(s ReceivablesSnapshot) {
	if m == nil || m.totalOutstanding == nil {
		return
	}
	m.totalOutstanding.Set(float64(s.TotalOutstanding))
	m.overdueAmount.Set(float64(s.OverdueAmount))
	m.creditBalance.Set(float64(s.CreditBalance))
	m.storesWithDebt.Set(float64(s.StoresWithDebt))
	m.storesOverLimit.Set(float64(s.StoresOverLimit))
	m.storesOverdue.Set(float64(s.StoresOverdue))
}
