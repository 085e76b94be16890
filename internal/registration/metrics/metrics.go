package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for reconciliation.
type Metrics struct {
	PaymentsReconciled *prometheus.CounterVec
	PaymentsDuplicate  *prometheus.CounterVec
	Conflicts          prometheus.Counter
	ConflictsExhausted prometheus.Counter
	Attempts           prometheus.Histogram
	Latency            prometheus.Histogram
}

// New creates the reconciliation metrics and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_payments_reconciled_total",
			Help: "Payments applied to a registration, labeled by source and trust",
		}, []string{"source", "trust"}),
		PaymentsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpay_payments_duplicate_total",
			Help: "Confirmations for payments that were already applied, labeled by source",
		}, []string{"source"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventpay_reconcile_conflicts_total",
			Help: "Version conflicts observed while saving registrations",
		}),
		ConflictsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventpay_reconcile_conflicts_exhausted_total",
			Help: "Reconciliations abandoned after exhausting conflict retries",
		}),
		Attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventpay_reconcile_attempts",
			Help:    "Read-modify-write attempts per reconciliation",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventpay_reconcile_latency_seconds",
			Help:    "Latency of reconciliations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PaymentsReconciled, m.PaymentsDuplicate, m.Conflicts,
			m.ConflictsExhausted, m.Attempts, m.Latency)
	}
	return m
}

func (m *Metrics) IncReconciled(source, trust string) {
	if m == nil {
		return
	}
	m.PaymentsReconciled.WithLabelValues(source, trust).Inc()
}

func (m *Metrics) IncDuplicate(source string) {
	if m == nil {
		return
	}
	m.PaymentsDuplicate.WithLabelValues(source).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

func (m *Metrics) IncExhausted() {
	if m == nil {
		return
	}
	m.ConflictsExhausted.Inc()
}

func (m *Metrics) ObserveAttempts(n int) {
	if m == nil {
		return
	}
	m.Attempts.Observe(float64(n))
}

func (m *Metrics) ObserveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.Latency.Observe(seconds)
}
