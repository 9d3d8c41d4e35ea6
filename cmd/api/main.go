// Package main provides the entrypoint for the weather dashboard API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherdash/weatherdash/internal/aggregate"
	"github.com/weatherdash/weatherdash/internal/api"
	"github.com/weatherdash/weatherdash/internal/config"
	"github.com/weatherdash/weatherdash/internal/database"
	"github.com/weatherdash/weatherdash/internal/observability"
	"github.com/weatherdash/weatherdash/internal/provider/resilience"
	"github.com/weatherdash/weatherdash/internal/scheduler"
	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather/openweathermap"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	const serviceName = "weatherdash-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	location, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid timezone")
	}

	log.Info().
		Int("cities", len(cfg.Keys)).
		Str("timezone", cfg.Timezone).
		Msg("starting weather dashboard API")

	ctx := context.Background()

	metrics := observability.NewMetrics()

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Msg("database connected")

	readingStore := store.NewPostgres(pool)

	httpClient := resilience.NewClient(resilience.DefaultClientConfig(openweathermap.ProviderName))
	provider, err := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.OpenWeatherAPIKey,
		BaseURL:    cfg.ProviderBaseURL,
		Units:      openweathermap.Units(cfg.ProviderUnits),
		HTTPClient: httpClient,
		Logger:     log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create weather provider")
	}

	engine := aggregate.NewEngine(aggregate.EngineConfig{
		Store:      readingStore,
		Forecaster: provider,
		Location:   location,
		Logger:     log,
		Metrics:    metrics,
	})

	// The manual /v1/ingest/tick trigger shares the scheduler logic with
	// the worker binary.
	sched := scheduler.New(scheduler.SchedulerConfig{
		Config: scheduler.Config{
			Keys:          cfg.Keys,
			Interval:      cfg.FetchInterval,
			MinInterval:   cfg.MinInterval,
			RetentionDays: cfg.RetentionDays,
			Concurrency:   cfg.Concurrency,
			Location:      location,
		},
		Store:    readingStore,
		Provider: provider,
		Logger:   log,
		Metrics:  metrics,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:  Version,
		Logger:   log,
		Metrics:  metrics,
		Store:    readingStore,
		Engine:   engine,
		Provider: provider,
		Ticker:   sched,
		Pinger:   pool,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
