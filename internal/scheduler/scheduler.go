// Package scheduler drives periodic weather ingestion: each tick fans out
// over the tracked cities, applies the per-city gap gate, persists fresh
// readings and finally enforces the retention window.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/weatherdash/weatherdash/internal/observability"
	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

// Provider fetches current conditions for one city.
type Provider interface {
	FetchCurrent(ctx context.Context, key weather.CityKey) (*weather.Reading, error)
}

// Outcome is the terminal state of one city within one tick.
type Outcome string

const (
	// OutcomeCommitted means a fresh reading was fetched and persisted.
	OutcomeCommitted Outcome = "committed"

	// OutcomeSkipped means the gap gate held: the last ingestion is too
	// recent, nothing was fetched.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the fetch or the persist failed. The failure is
	// confined to this city; other cities in the tick are unaffected.
	OutcomeFailed Outcome = "failed"
)

// Config holds configuration for the ingestion scheduler.
type Config struct {
	// Keys are the cities to ingest. Order does not matter; each key is
	// scheduled independently.
	Keys []weather.CityKey

	// Interval is the tick period for Run.
	// Default: 30 minutes
	Interval time.Duration

	// MinInterval is the minimum gap between two stored readings for the
	// same city. A tick that arrives earlier skips the city.
	// Default: 30 minutes
	MinInterval time.Duration

	// RetentionDays bounds how far back stored rows are kept. Rows older
	// than now minus this many days are purged after each tick.
	// Default: 7
	RetentionDays int

	// Concurrency is the number of cities fetched in parallel.
	// Default: 3
	Concurrency int

	// Timeout bounds the fetch-and-persist work for one city.
	// Default: 15 seconds
	Timeout time.Duration

	// Location is the civil timezone used to stamp readings.
	// Default: time.UTC
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = 30 * time.Minute
	}
	if c.MinInterval == 0 {
		c.MinInterval = 30 * time.Minute
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 7
	}
	if c.Concurrency == 0 {
		c.Concurrency = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// KeyResult is the outcome of one city within one tick.
type KeyResult struct {
	Key     weather.CityKey
	Outcome Outcome
	Err     error
}

// TickReport summarizes one tick: per-city results plus the retention purge
// that ran after all cities settled.
type TickReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Committed int
	Skipped   int
	Failed    int
	Results   []KeyResult
	Purged    int64
	PurgeErr  error
}

// SchedulerConfig holds the dependencies for creating a Scheduler.
type SchedulerConfig struct {
	Config   Config
	Store    store.Store
	Provider Provider
	Clock    clockwork.Clock
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// Scheduler owns the ingestion loop. One instance runs at a time; ticks do
// not overlap because Run executes them sequentially.
type Scheduler struct {
	config   Config
	store    store.Store
	provider Provider
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// New creates an ingestion scheduler.
func New(cfg SchedulerConfig) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	return &Scheduler{
		config:   cfg.Config.withDefaults(),
		store:    cfg.Store,
		provider: cfg.Provider,
		clock:    clock,
		logger:   cfg.Logger,
		metrics:  metrics,
	}
}

// Run executes ticks at the configured interval until the context is
// cancelled. The first tick fires immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.SchedulerUp.Set(1)
	defer s.metrics.SchedulerUp.Set(0)

	s.logger.Info().
		Int("cities", len(s.config.Keys)).
		Dur("interval", s.config.Interval).
		Msg("starting ingestion loop")

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("ingestion loop stopped")
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// Tick runs one ingestion round: every configured city is fetched through a
// bounded worker pool, then, after all cities settle, one retention purge
// runs. A failing city never aborts the others.
func (s *Scheduler) Tick(ctx context.Context) *TickReport {
	start := s.clock.Now()
	report := &TickReport{StartedAt: start}

	keys := make(chan weather.CityKey, len(s.config.Keys))
	results := make(chan KeyResult, len(s.config.Keys))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, keys, results)
		}()
	}

	for _, key := range s.config.Keys {
		keys <- key
	}
	close(keys)

	// All cities must settle before the purge may run.
	wg.Wait()
	close(results)

	for r := range results {
		report.Results = append(report.Results, r)
		switch r.Outcome {
		case OutcomeCommitted:
			report.Committed++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
		}
		s.metrics.KeyOutcomes.WithLabelValues(string(r.Outcome)).Inc()
	}

	report.Purged, report.PurgeErr = s.purge(ctx)

	report.Duration = s.clock.Now().Sub(start)
	s.metrics.TicksTotal.Inc()
	s.metrics.TickDuration.Observe(report.Duration.Seconds())

	level := zerolog.InfoLevel
	if report.Failed > 0 || report.PurgeErr != nil {
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).
		Dur("duration", report.Duration).
		Int("committed", report.Committed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int64("purged", report.Purged).
		Msg("ingestion tick completed")

	return report
}

func (s *Scheduler) worker(ctx context.Context, keys <-chan weather.CityKey, results chan<- KeyResult) {
	for key := range keys {
		select {
		case <-ctx.Done():
			// Keys not reached before cancellation stay unprocessed, they
			// are picked up again on the next tick. Cancellation is not a
			// per-city failure.
			return
		default:
		}
		results <- s.ingestOne(ctx, key)
	}
}

// ingestOne takes a single city through the gap gate, the provider fetch and
// the two persistence writes.
func (s *Scheduler) ingestOne(ctx context.Context, key weather.CityKey) KeyResult {
	keyCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	now := s.clock.Now().In(s.config.Location)

	last, ok, err := s.store.LastIngestedAt(keyCtx, key)
	if err != nil {
		return s.fail(key, err)
	}
	if ok && now.Sub(last) < s.config.MinInterval {
		s.logger.Debug().
			Str("city", key.Key()).
			Time("last_ingested_at", last).
			Msg("skipping city, last reading too recent")
		return KeyResult{Key: key, Outcome: OutcomeSkipped}
	}

	fetchStart := s.clock.Now()
	reading, err := s.provider.FetchCurrent(keyCtx, key)
	s.metrics.FetchDuration.Observe(s.clock.Now().Sub(fetchStart).Seconds())
	if err != nil {
		return s.fail(key, err)
	}

	// The ingestion clock stamps the reading; the provider's own timestamp
	// is ignored.
	reading.RecordedAt = now

	if err := s.store.InsertReading(keyCtx, *reading); err != nil {
		return s.fail(key, err)
	}
	if err := s.store.InsertHistory(keyCtx, weather.HistoryFromReading(*reading)); err != nil {
		return s.fail(key, err)
	}

	s.logger.Debug().
		Str("city", key.Key()).
		Float64("temperature", reading.Temperature).
		Msg("city ingested")

	return KeyResult{Key: key, Outcome: OutcomeCommitted}
}

func (s *Scheduler) fail(key weather.CityKey, err error) KeyResult {
	s.countError(err)
	s.logger.Error().
		Err(err).
		Str("city", key.Key()).
		Msg("city ingestion failed")
	return KeyResult{Key: key, Outcome: OutcomeFailed, Err: err}
}

// purge enforces the retention window once per tick.
func (s *Scheduler) purge(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().In(s.config.Location).AddDate(0, 0, -s.config.RetentionDays)

	deleted, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.countError(err)
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("retention purge failed")
		return deleted, err
	}

	if deleted > 0 {
		s.metrics.RowsPurged.Add(float64(deleted))
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention purge completed")
	}
	return deleted, nil
}

func (s *Scheduler) countError(err error) {
	switch {
	case errors.Is(err, weather.ErrFetchTimeout):
		s.metrics.FetchErrors.WithLabelValues("timeout").Inc()
	case errors.Is(err, weather.ErrUnreachable):
		s.metrics.FetchErrors.WithLabelValues("unreachable").Inc()
	case errors.Is(err, weather.ErrMalformedResponse):
		s.metrics.FetchErrors.WithLabelValues("malformed").Inc()
	case errors.Is(err, store.ErrConnection):
		s.metrics.StoreErrors.WithLabelValues("connection").Inc()
	case errors.Is(err, store.ErrConstraint):
		s.metrics.StoreErrors.WithLabelValues("constraint").Inc()
	case errors.Is(err, store.ErrQuery):
		s.metrics.StoreErrors.WithLabelValues("query").Inc()
	default:
		s.metrics.FetchErrors.WithLabelValues("other").Inc()
	}
}
