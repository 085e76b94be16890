package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for order creation and payment confirmation.
type Metrics struct {
	OrdersCreated     prometheus.Counter
	OrderFailures     *prometheus.CounterVec
	SignatureFailures *prometheus.CounterVec
	PartialFailures   prometheus.Counter
	WebhookEvents     *prometheus.CounterVec
	TrustedEvents     *prometheus.CounterVec
	OrderCacheLookups *prometheus.CounterVec
	ConfirmLatency    *prometheus.HistogramVec
}

// New creates the payment metrics and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventpay_orders_created_total",
			Help: "Orders created at the payment gateway",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_order_failures_total",
			Help: "Order creations that failed, labeled by reason",
		}, []string{"reason"}),
		SignatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_signature_failures_total",
			Help: "Rejected signatures, labeled by channel (direct, webhook)",
		}, []string{"channel"}),
		PartialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventpay_partial_failures_total",
			Help: "Verified payments that could not be recorded",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_webhook_events_total",
			Help: "Webhook deliveries, labeled by event type and outcome",
		}, []string{"event", "outcome"}),
		TrustedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_trusted_events_total",
			Help: "Event list recoveries during confirmation, labeled by channel and trust",
		}, []string{"channel", "trust"}),
		OrderCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_order_cache_lookups_total",
			Help: "Order cache lookups, labeled by result (hit, miss, error)",
		}, []string{"result"}),
		ConfirmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventpay_confirm_latency_seconds",
			Help:    "Latency of payment confirmations in seconds, labeled by channel",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"channel"}),
	}
	if reg != nil {
		reg.MustRegister(m.OrdersCreated, m.OrderFailures, m.SignatureFailures, m.PartialFailures,
			m.WebhookEvents, m.TrustedEvents, m.OrderCacheLookups, m.ConfirmLatency)
	}
	return m
}

func (m *Metrics) IncOrdersCreated() {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) IncOrderFailure(reason string) {
	if m == nil {
		return
	}
	m.OrderFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSignatureFailure(channel string) {
	if m == nil {
		return
	}
	m.SignatureFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncPartialFailure() {
	if m == nil {
		return
	}
	m.PartialFailures.Inc()
}

func (m *Metrics) IncWebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) IncTrustedEvents(channel, trust string) {
	if m == nil {
		return
	}
	m.TrustedEvents.WithLabelValues(channel, trust).Inc()
}

func (m *Metrics) IncOrderCacheLookup(result string) {
	if m == nil {
		return
	}
	m.OrderCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveConfirmLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.ConfirmLatency.WithLabelValues(channel).Observe(seconds)
}
