package worker

import (
	"context"
	"log/slog"
	"time"

	"eventpay/internal/platform/kafka/producer"
	"eventpay/pkg/platform/outbox"
	"eventpay/pkg/platform/outbox/metrics"
)

// Producer publishes a single message. *producer.Producer and
// *producer.NoopProducer both satisfy it.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker relays registration events from the outbox to Kafka, keyed by user
// id. Delivery is at-least-once; the outbox_id header identifies repeats.
type Worker struct {
	store        outbox.Store
	producer     Producer
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) {
		if topic != "" {
			w.topic = topic
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithRetention sets how long published entries are kept before cleanup.
// Zero disables cleanup.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) {
		w.retention = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func New(store outbox.Store, prod Producer, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		producer:     prod,
		topic:        "eventpay.registrations",
		batchSize:    100,
		pollInterval: 500 * time.Millisecond,
		retention:    24 * time.Hour,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled, then drains what is left with a short
// deadline. It always returns nil so it can sit in an errgroup next to the
// HTTP server.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

// PollOnce publishes one batch and returns how many entries went out. When
// an entry fails, later entries of the same aggregate in the batch are held
// back so a user's events are never published out of order.
func (w *Worker) PollOnce(ctx context.Context) int {
	defer w.metrics.PollDone(time.Now())

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "outbox fetch failed", "error", err)
		w.metrics.FetchFailed()
		return 0
	}
	w.metrics.Fetched(len(entries))

	blocked := make(map[string]bool)
	published := 0
	for _, entry := range entries {
		if blocked[entry.AggregateID] {
			w.metrics.Entry(metrics.OutcomeHeld)
			continue
		}
		if err := w.publish(ctx, entry); err != nil {
			blocked[entry.AggregateID] = true
			w.logger.ErrorContext(ctx, "outbox publish failed",
				"outbox_id", entry.ID,
				"aggregate_id", entry.AggregateID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.metrics.Entry(metrics.OutcomeFailed)
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			// Published but unmarked: it goes out again next poll and
			// consumers drop it by outbox_id.
			blocked[entry.AggregateID] = true
			w.logger.ErrorContext(ctx, "outbox mark failed", "outbox_id", entry.ID, "error", err)
			w.metrics.Entry(metrics.OutcomeUnmarked)
			continue
		}
		published++
		w.metrics.Entry(metrics.OutcomePublished)
	}

	w.housekeeping(ctx)
	return published
}

func (w *Worker) publish(ctx context.Context, entry *outbox.Entry) error {
	defer w.metrics.Published(time.Now())
	return w.producer.Produce(ctx, &producer.Message{
		Topic:   w.topic,
		Key:     []byte(entry.AggregateID),
		Value:   entry.Payload,
		Headers: entry.Headers(),
	})
}

func (w *Worker) housekeeping(ctx context.Context) {
	if w.metrics != nil {
		if count, err := w.store.CountPending(ctx); err == nil {
			w.metrics.SetPending(count)
		}
	}
	if w.retention > 0 {
		if _, err := w.store.DeleteProcessedBefore(ctx, w.now().Add(-w.retention)); err != nil {
			w.logger.WarnContext(ctx, "outbox cleanup failed", "error", err)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w.logger.Info("draining outbox worker")
	for ctx.Err() == nil {
		if w.PollOnce(ctx) == 0 {
			return
		}
	}
}
