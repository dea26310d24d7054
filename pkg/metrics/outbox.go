package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher outcomes per topic.
type OutboxMetrics struct {
	outcomes *prometheus.CounterVec
}

// Publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetry        = "retry"
	OutboxDeadLettered = "dead_lettered"
)

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher, by topic and outcome.",
	}, []string{"topic", "outcome"})
	if err := reg.Register(outcomes); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		outcomes = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &OutboxMetrics{outcomes: outcomes}
}

func (m *OutboxMetrics) Inc(topic, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(topic), outcome).Inc()
}
