package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gigmarket"

// OrderMetrics counts applied lifecycle transitions.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
}

// NewOrderMetrics registers order_transitions_total on reg. A nil registerer
// yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions applied, by source status, target status and actor.",
	}, []string{"from", "to", "actor"})
	if err := reg.Register(transitions); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		transitions = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &OrderMetrics{transitions: transitions}
}

// IncTransition records one applied transition.
func (m *OrderMetrics) IncTransition(from, to, actor string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(actor)).Inc()
}
