package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fluxo/internal/log"
	"fluxo/internal/middleware/ratelimit"
	"fluxo/internal/middleware/security"
	"fluxo/internal/middleware/trace"
	"fluxo/internal/services"
)

// Options tunes the server. Zero values get defaults.
type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *log.Logger
	// Registry receives every collector; a fresh one is created when nil.
	Registry *prometheus.Registry
	Now      func() time.Time
}

type Server struct {
	http.Server
	ledger    *services.Ledger
	dashboard *services.Dashboard

	registry    *prometheus.Registry
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	logger      *log.Logger
	now         func() time.Time
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, ledger *services.Ledger, dashboard *services.Dashboard, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		ledger:      ledger,
		dashboard:   dashboard,
		registry:    opts.Registry,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:    security.NewDetector(security.NewSuspiciousCounter(opts.Registry)),
		logger:      opts.Logger.WithComponent(log.ComponentHTTP),
		now:         opts.Now,
		started:     opts.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(trace.NewMetrics(opts.Registry)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(metrics *trace.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware(s.logger))
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, metrics, s.logger).Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { NotFoundError().Write(w) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { MethodNotAllowedError().Write(w) })

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	r.Route("/api", func(r chi.Router) {
		r.Use(log.ComponentMiddleware(log.ComponentHTTP))

		r.Get("/periods", s.handlePeriods)
		r.Get("/summary", s.handleSummary)
		r.Get("/charts", s.handleCharts)
		r.Get("/overview", s.handleOverview)

		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Get("/categories", s.handleListCategories)
		r.Get("/payment-methods", s.handleListPaymentMethods)

		// Writes are rate limited per client
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
				TooManyRequestsError().Write(w)
			}))

			r.Post("/transactions", s.handleCreateTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)

			r.Post("/categories", s.handleCreateCategory)
			r.Put("/categories/{id}", s.handleUpdateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)

			r.Post("/payment-methods", s.handleCreatePaymentMethod)
			r.Put("/payment-methods/{id}", s.handleUpdatePaymentMethod)
			r.Delete("/payment-methods/{id}", s.handleDeletePaymentMethod)
		})
	})

	return r
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
