// Package rpc exposes the valuation engine over HTTP. Valuation reads run
// against committed state; deposits and withdrawals go through the registry's
// transactional path.
package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricevault/config"
	"pricevault/native/registry"
	"pricevault/observability/metrics"
)

type Server struct {
	registry *registry.Registry
	log      *slog.Logger
	metrics  *metrics.ValuationMetrics
	limiter  *rateLimiter
}

type registryResult struct {
	valuation registry.PortfolioValuation
	err       error
}

func NewServer(reg *registry.Registry, log *slog.Logger, limits config.RateLimit) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		registry: reg,
		log:      log,
		metrics:  metrics.Valuation(),
		limiter:  newRateLimiter(limits.RequestsPerSecond, limits.Burst),
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)
	r.Use(s.limiter.middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/portfolio/value", s.handlePortfolioValue)
		r.Post("/portfolio/value-in", s.handlePortfolioValueIn)
		r.Post("/deposit", s.handleDeposit)
		r.Post("/withdraw", s.handleWithdraw)
		r.Post("/feeds/check", s.handleFeedCheck)
	})
	return r
}

// observe records per-route latency.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.ObserveRequestDuration(route, time.Since(start).Seconds())
	})
}
