package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"eventpay/internal/payment/cache"
	"eventpay/internal/platform/config"
	"eventpay/internal/platform/database"
	"eventpay/internal/platform/health"
	"eventpay/internal/platform/kafka/producer"
	"eventpay/internal/platform/redis"
	regservice "eventpay/internal/registration/service"
	"eventpay/internal/registration/store"
	"eventpay/pkg/platform/outbox"
	outboxmetrics "eventpay/pkg/platform/outbox/metrics"
	outboxmemory "eventpay/pkg/platform/outbox/store/memory"
	outboxpg "eventpay/pkg/platform/outbox/store/postgres"
	"eventpay/pkg/platform/outbox/worker"
)

// infra holds the process-wide backing services. Fields are nil when the
// corresponding backend is not configured.
type infra struct {
	store      regservice.Store
	orders     cache.OrderCache
	deliveries cache.DeliveryLog
	worker     *worker.Worker
	redis      *redis.Client

	closers []func() error
	log     *slog.Logger
}

func (i *infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			i.log.Warn("close failed", "error", err)
		}
	}
}

func buildInfra(ctx context.Context, cfg config.Server, reg prometheus.Registerer, hh *health.Handler, log *slog.Logger) (*infra, error) {
	in := &infra{log: log}
	ok := false
	defer func() {
		if !ok {
			in.Close()
		}
	}()

	ob, err := in.openStore(ctx, cfg, hh)
	if err != nil {
		return nil, err
	}

	rc, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.closers = append(in.closers, rc.Close)
		hh.RegisterOptional("redis", rc.Health)
		in.orders = cache.NewRedisOrderCache(rc.Client, cfg.OrderCacheTTL)
		in.deliveries = cache.NewRedisDeliveryLog(rc.Client, cfg.WebhookRetryWindow)
		log.Info("redis caches enabled")
	} else {
		in.orders = cache.NewMemoryOrderCache(cfg.OrderCacheTTL)
		in.deliveries = cache.NewMemoryDeliveryLog(cfg.WebhookRetryWindow)
	}

	if ob != nil {
		var prod worker.Producer
		if cfg.Kafka.Brokers != "" {
			p, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
			if err != nil {
				return nil, fmt.Errorf("kafka producer: %w", err)
			}
			in.closers = append(in.closers, p.Close)
			hh.RegisterOptional("kafka", p.Health)
			prod = p
		} else {
			log.Info("kafka not configured, registration events are logged only")
			prod = producer.NewNoopProducer(log)
		}
		in.worker = worker.New(ob, prod,
			worker.WithTopic(cfg.Kafka.Topic),
			worker.WithBatchSize(cfg.Kafka.OutboxBatchSize),
			worker.WithPollInterval(cfg.Kafka.OutboxPollInterval),
			worker.WithMetrics(outboxmetrics.New(reg)),
			worker.WithLogger(log),
		)
	}

	ok = true
	return in, nil
}

// openStore selects the registration backend and returns the outbox that
// shares its transactions, or nil when the store is disabled.
func (i *infra) openStore(ctx context.Context, cfg config.Server, hh *health.Handler) (outbox.Store, error) {
	switch cfg.Registration.Store {
	case config.StorePostgres:
		pool, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		i.closers = append(i.closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		hh.RegisterCheck("database", pool.Health)
		i.store = store.NewPostgres(pool.DB())
		return outboxpg.New(pool.DB()), nil
	case config.StoreBolt:
		b, err := store.OpenBolt(cfg.Registration.BoltPath)
		if err != nil {
			return nil, err
		}
		i.closers = append(i.closers, b.Close)
		i.store = b
		return b.Outbox(), nil
	case config.StoreDisabled:
		i.log.Warn("registration store disabled, verified payments will be reported as partial failures")
		i.store = store.Unavailable{Reason: "registration store disabled"}
		return nil, nil
	default:
		mem := store.NewInMemory(outboxmemory.New())
		i.store = mem
		return mem.Outbox(), nil
	}
}
