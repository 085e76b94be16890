// Package metrics exports the outbox relay's progress. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Entry outcomes.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeHeld      = "held"
	OutcomeUnmarked  = "unmarked"
)

var latencyBuckets = prometheus.ExponentialBuckets(0.001, 2.5, 9)

type Metrics struct {
	Entries *prometheus.CounterVec
	Pending prometheus.Gauge
	Batch   prometheus.Histogram
	Publish prometheus.Histogram
	Poll    prometheus.Histogram
	Fetch   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventpay",
			Subsystem: "outbox",
			Name:      "entries_total",
			Help:      "Outbox entries handled by the relay, by outcome.",
		}, []string{"outcome"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventpay",
			Subsystem: "outbox",
			Name:      "pending",
			Help:      "Entries not yet published.",
		}),
		Batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventpay",
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Entries fetched per poll.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Publish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventpay",
			Subsystem: "outbox",
			Name:      "publish_seconds",
			Help:      "Broker acknowledgement latency per entry.",
			Buckets:   latencyBuckets,
		}),
		Poll: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventpay",
			Subsystem: "outbox",
			Name:      "poll_seconds",
			Help:      "Duration of a whole poll cycle.",
			Buckets:   latencyBuckets,
		}),
		Fetch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventpay",
			Subsystem: "outbox",
			Name:      "fetch_errors_total",
			Help:      "Polls that could not read the outbox.",
		}),
	}
	for _, outcome := range []string{OutcomePublished, OutcomeFailed, OutcomeHeld, OutcomeUnmarked} {
		m.Entries.WithLabelValues(outcome)
	}
	if reg != nil {
		reg.MustRegister(m.Entries, m.Pending, m.Batch, m.Publish, m.Poll, m.Fetch)
	}
	return m
}

func (m *Metrics) Entry(outcome string) {
	if m != nil {
		m.Entries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) FetchFailed() {
	if m != nil {
		m.Fetch.Inc()
	}
}

func (m *Metrics) SetPending(n int64) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}

func (m *Metrics) Fetched(n int) {
	if m != nil && n > 0 {
		m.Batch.Observe(float64(n))
	}
}

func (m *Metrics) since(h prometheus.Histogram, start time.Time) {
	if m != nil {
		h.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) PollDone(start time.Time) {
	if m != nil {
		m.since(m.Poll, start)
	}
}

func (m *Metrics) Published(start time.Time) {
	if m != nil {
		m.since(m.Publish, start)
	}
}
