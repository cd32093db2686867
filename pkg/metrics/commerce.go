package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics counts outcomes of the transactional core.
type CommerceMetrics struct {
	webhooks      *prometheus.CounterVec
	ledger        *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	outboxPublish *prometheus.CounterVec
}

// NewCommerceMetrics registers the domain counters on reg. A nil registerer yields no-op metrics.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	m := &CommerceMetrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_webhook_events_total",
			Help: "Payment webhook deliveries by type and outcome.",
		}, []string{"type", "outcome"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_stock_ledger_conflicts_total",
			Help: "Ledger decrements rejected for insufficient stock.",
		}, []string{"operation"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_refunds_total",
			Help: "Refund attempts by method and resulting status.",
		}, []string{"method", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_order_transitions_total",
			Help: "Applied order transitions by event and target status.",
		}, []string{"event", "status"}),
		outboxPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_outbox_publish_total",
			Help: "Outbox publish attempts by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.webhooks, m.ledger, m.refunds, m.transitions, m.outboxPublish)
	return m
}

func (m *CommerceMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *CommerceMetrics) LedgerConflict(operation string) {
	if m == nil || m.ledger == nil {
		return
	}
	m.ledger.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *CommerceMetrics) Refund(method, status string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
}

func (m *CommerceMetrics) OrderTransition(event, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event), normalizeLabel(status)).Inc()
}

func (m *CommerceMetrics) OutboxPublish(eventType, result string) {
	if m == nil || m.outboxPublish == nil {
		return
	}
	m.outboxPublish.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
