// Package api provides the HTTP API for quakewatch.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/api/handler"
	"github.com/quakewatch/quakewatch/internal/api/middleware"
	"github.com/quakewatch/quakewatch/internal/api/response"
	"github.com/quakewatch/quakewatch/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	Board    handler.Board
	Registry *resilience.Registry

	// Tokens guards the admin routes. Without it refresh and reset are not
	// mounted.
	Tokens middleware.TokenValidator

	// Metrics records OpenTelemetry HTTP metrics when set.
	Metrics *middleware.Metrics

	// Gatherer backs GET /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	RequireTLS bool
	Clock      clockwork.Clock
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "quakewatch-api"
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Order matters: request ID first so every later layer can log it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Board, cfg.Registry, cfg.Clock)
	quakeHandler := handler.NewEarthquakeHandler(cfg.Board, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.With(standardRateLimit).Get("/earthquakes", quakeHandler.List)

		if cfg.Tokens != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(cfg.Tokens))
				r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit))
				r.Use(middleware.RequireJSON)
				r.Post("/earthquakes:refresh", quakeHandler.Refresh)
				r.Post("/earthquakes:reset", quakeHandler.Reset)
			})
		}
	})

	return r
}
