package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncTransition("pending", "in_progress", "seller")
	m.IncTransition("pending", "in_progress", "seller")
	m.IncTransition("delivered", "completed", "buyer")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "gigmarket_order_transitions_total")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 2)
	require.Equal(t, float64(2), counterWithLabels(mf, map[string]string{"from": "pending", "to": "in_progress", "actor": "seller"}))
	require.Equal(t, float64(1), counterWithLabels(mf, map[string]string{"from": "delivered", "to": "completed", "actor": "buyer"}))
}

func TestOrderMetricsReusesRegisteredCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetrics(reg)
	second := NewOrderMetrics(reg)
	first.IncTransition("pending", "cancelled", "buyer")
	second.IncTransition("pending", "cancelled", "buyer")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	mf := findMetricFamily(mfs, "gigmarket_order_transitions_total")
	require.Equal(t, float64(2), counterWithLabels(mf, map[string]string{"from": "pending", "to": "cancelled", "actor": "buyer"}))
}

func TestOrderMetricsNilIsNoop(t *testing.T) {
	var m *OrderMetrics
	m.IncTransition("a", "b", "c")
	NewOrderMetrics(nil).IncTransition("a", "b", "c")
}

func counterWithLabels(mf *dto.MetricFamily, labels map[string]string) float64 {
	for _, metric := range mf.GetMetric() {
		matched := 0
		for _, pair := range metric.GetLabel() {
			if labels[pair.GetName()] == pair.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}
