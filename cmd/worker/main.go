// Package main provides the entrypoint for the weather ingestion worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weatherdash/weatherdash/internal/aggregate"
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
	const serviceName = "weatherdash-worker"

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

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

	// Sparse cities get a week of synthetic rows once at startup so the
	// dashboard has something to aggregate from day one.
	engine := aggregate.NewEngine(aggregate.EngineConfig{
		Store:    readingStore,
		Location: location,
		Logger:   log,
		Metrics:  metrics,
	})
	for _, key := range cfg.Keys {
		if _, err := engine.BackfillIfSparse(ctx, key, aggregate.DefaultMinRows); err != nil {
			log.Error().Err(err).Str("city", key.Key()).Msg("startup backfill failed")
		}
	}

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

	// Health and metrics endpoint for the orchestrator.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, Version)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("ingestion loop error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
