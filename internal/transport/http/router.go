package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventpay/internal/payment/handler"
	"eventpay/internal/platform/health"
	request "eventpay/pkg/platform/middleware/request"
)

// RouterConfig carries what the router mounts. Health and Gatherer are optional.
type RouterConfig struct {
	Logger         *slog.Logger
	Payments       *handler.Handler
	Health         *health.Handler
	Gatherer       prometheus.Gatherer
	Latency        *request.Metrics
	RequestTimeout time.Duration
}

// NewRouter wires the public API with the shared middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.ClientIP)
	r.Use(request.Clock(nil))
	r.Use(request.Logger(logger))
	r.Use(request.LatencyMiddleware(cfg.Latency, routePattern))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		cfg.Payments.Register(r)
	})
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
