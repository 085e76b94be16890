package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"eventpay/internal/catalog"
	"eventpay/internal/gateway"
	"eventpay/internal/payment/handler"
	paymetrics "eventpay/internal/payment/metrics"
	payservice "eventpay/internal/payment/service"
	"eventpay/internal/platform/config"
	"eventpay/internal/platform/health"
	"eventpay/internal/platform/logger"
	regmetrics "eventpay/internal/registration/metrics"
	regservice "eventpay/internal/registration/service"
	httptransport "eventpay/internal/transport/http"
	"eventpay/pkg/platform/circuit"
	request "eventpay/pkg/platform/middleware/request"
	"eventpay/pkg/platform/tracer"
)

const shutdownTimeout = 10 * time.Second

// main loads configuration and runs the server until SIGINT or SIGTERM.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing eventpay",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"registration_store", cfg.Registration.Store,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	healthHandler := health.New(cfg.Environment)

	infra, err := buildInfra(ctx, cfg, reg, healthHandler, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			return err
		}
	}

	trc := tracer.NewOTel()
	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret,
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithBreaker(circuit.New("razorpay", circuit.Settings{Trips: 5, Cooldown: 30 * time.Second},
			circuit.OnTransition(gateway.LogTransition(log)))),
		gateway.WithTracer(trc),
		gateway.WithLogger(log),
	)

	reconciler := regservice.New(infra.store,
		regservice.WithMaxAttempts(cfg.Registration.MaxAttempts),
		regservice.WithMetrics(regmetrics.New(reg)),
		regservice.WithTracer(trc),
		regservice.WithLogger(log),
	)
	payMetrics := paymetrics.New(reg)
	orders := payservice.NewOrderService(cat, gw,
		payservice.WithOrderCache(infra.orders),
		payservice.WithOrderReader(gw),
		payservice.WithOrderMetrics(payMetrics),
		payservice.WithOrderLogger(log),
		payservice.WithOrderTimeout(cfg.Gateway.Timeout),
		payservice.WithCurrency(cfg.Gateway.Currency),
	)
	confirmer := payservice.NewConfirmer(reconciler, gw,
		payservice.Secrets{KeySecret: cfg.Gateway.KeySecret, WebhookSecret: cfg.Gateway.WebhookSecret},
		payservice.WithConfirmOrderCache(infra.orders),
		payservice.WithDeliveryLog(infra.deliveries),
		payservice.WithCatalog(cat),
		payservice.WithFetchTimeout(cfg.Gateway.FetchTimeout),
		payservice.WithConfirmMetrics(payMetrics),
		payservice.WithConfirmTracer(trc),
		payservice.WithConfirmLogger(log),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   log,
		Payments: handler.New(orders, confirmer, reconciler, log),
		Health:   healthHandler,
		Gatherer: reg,
		Latency:  request.NewMetrics(reg),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if infra.worker != nil {
		g.Go(func() error { return infra.worker.Run(gctx) })
	}
	return g.Wait()
}
