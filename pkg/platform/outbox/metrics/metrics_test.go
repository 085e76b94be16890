package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Entry(OutcomePublished)
		m.FetchFailed()
		m.SetPending(3)
		m.Fetched(2)
		m.PollDone(time.Now())
		m.Published(time.Now())
	})
}

func TestOutcomesArePreinitialised(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	assert.Equal(t, 4, testutil.CollectAndCount(m.Entries))

	m.Entry(OutcomeHeld)
	m.Entry(OutcomeHeld)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Entries.WithLabelValues(OutcomeHeld)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Entries.WithLabelValues(OutcomePublished)))
}

func TestFetchedIgnoresEmptyPolls(t *testing.T) {
	m := New(nil)
	m.Fetched(0)
	m.Fetched(5)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Batch))
}
