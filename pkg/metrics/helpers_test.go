package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}

// sample gathers reg and returns the series of name whose labels include
// every pair in kv (name1, value1, name2, value2...). It fails the test when
// no series matches.
func sample(t *testing.T, reg prometheus.Gatherer, name string, kv ...string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	mf := findMetricFamily(mfs, name)
	require.NotNil(t, mf, "metric %s not exported", name)
	for _, m := range mf.GetMetric() {
		ok := true
		for i := 0; i+1 < len(kv); i += 2 {
			ok = ok && matchesLabel(m.GetLabel(), kv[i], kv[i+1])
		}
		if ok {
			return m
		}
	}
	require.Failf(t, "series not found", "%s%v", name, kv)
	return nil
}
