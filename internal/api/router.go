// Package api provides the HTTP API for the weather dashboard.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weatherdash/weatherdash/internal/aggregate"
	"github.com/weatherdash/weatherdash/internal/api/handler"
	"github.com/weatherdash/weatherdash/internal/api/middleware"
	"github.com/weatherdash/weatherdash/internal/observability"
	"github.com/weatherdash/weatherdash/internal/store"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version  string
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Store    store.Store
	Engine   *aggregate.Engine
	Provider handler.Provider
	Ticker   handler.Ticker
	Pinger   handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	weatherHandler := handler.NewWeatherHandler(cfg.Store, cfg.Engine, cfg.Provider)
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.Pinger)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/weather", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/current", weatherHandler.Current)
			r.Get("/history", weatherHandler.History)
			r.Get("/today", weatherHandler.Today)
			r.Get("/daily", weatherHandler.Daily)
			r.Get("/forecast/daily", weatherHandler.ForecastDaily)
			r.Get("/compare", weatherHandler.Compare)
		})

		// The manual trigger fans out provider calls; keep it on a
		// tight budget.
		if cfg.Ticker != nil {
			ingestHandler := handler.NewIngestHandler(cfg.Ticker)
			r.With(middleware.RateLimitByIP(middleware.IngestRateLimit)).
				Post("/ingest/tick", ingestHandler.Tick)
		}

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
