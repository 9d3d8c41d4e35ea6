// Package aggregate computes the read-side views of the weather data:
// daily averages, forecast rollups, time-of-day slices, trend status and
// the synthetic backfill for sparse cities.
package aggregate

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/weatherdash/weatherdash/internal/observability"
	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

// Forecaster fetches the forecast series for one city.
type Forecaster interface {
	FetchForecast(ctx context.Context, key weather.CityKey) ([]weather.ForecastPoint, error)
}

// Backfill shape for cities with too little history: one week of synthetic
// rows at four fixed hours per day, drawn from plausible value bands.
const (
	// DefaultMinRows is the history row count at or below which a city is
	// considered sparse.
	DefaultMinRows = 6

	backfillDays = 7
)

var backfillHours = [4]int{0, 6, 12, 18}

// EngineConfig holds the dependencies for creating an Engine.
type EngineConfig struct {
	Store      store.Store
	Forecaster Forecaster
	Clock      clockwork.Clock
	Location   *time.Location
	Rand       *rand.Rand
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
}

// Engine serves aggregation queries on top of the store and the forecast
// provider. It is stateless apart from its random source.
type Engine struct {
	store      store.Store
	forecaster Forecaster
	clock      clockwork.Clock
	location   *time.Location
	rand       *rand.Rand
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewEngine creates an aggregation engine.
func NewEngine(cfg EngineConfig) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	return &Engine{
		store:      cfg.Store,
		forecaster: cfg.Forecaster,
		clock:      clock,
		location:   loc,
		rand:       rnd,
		logger:     cfg.Logger,
		metrics:    metrics,
	}
}

// midnight returns the start of the current civil day.
func (e *Engine) midnight() time.Time {
	now := e.clock.Now().In(e.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.location)
}

// DailyAverages returns up to days per-day averages, oldest first. With
// excludeToday the current day stays out even when it has rows: they are
// still accumulating and would drag the average.
func (e *Engine) DailyAverages(ctx context.Context, key weather.CityKey, days int, excludeToday bool) ([]store.DailyAverage, error) {
	query := store.DailyAverageQuery{Limit: days}
	if excludeToday {
		query.Before = e.midnight()
	}
	averages, err := e.store.QueryDailyAverage(ctx, key, query)
	if err != nil {
		return nil, err
	}

	// The store hands back the most recent days first; the chart wants
	// chronological order.
	sort.Slice(averages, func(i, j int) bool {
		return averages[i].Day.Before(averages[j].Day)
	})
	return averages, nil
}

// ForecastDailyAverages fetches the forecast and rolls it up into per-day
// averages, oldest first, capped at days. The current day is excluded, it
// is served as a live series instead. An empty forecast yields an empty
// result, not an error.
func (e *Engine) ForecastDailyAverages(ctx context.Context, key weather.CityKey, days int) ([]store.DailyAverage, error) {
	points, err := e.forecaster.FetchForecast(ctx, key)
	if err != nil {
		return nil, err
	}

	today := e.midnight()
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, p := range points {
		local := p.Time.In(e.location)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.location)
		if !day.After(today) {
			continue
		}
		sums[day] += p.Temperature
		counts[day]++
	}

	averages := make([]store.DailyAverage, 0, len(sums))
	for day, sum := range sums {
		averages = append(averages, store.DailyAverage{
			Day:     day,
			AvgTemp: round1(sum / float64(counts[day])),
		})
	}

	sort.Slice(averages, func(i, j int) bool {
		return averages[i].Day.Before(averages[j].Day)
	})

	if days > 0 && len(averages) > days {
		averages = averages[:days]
	}
	return averages, nil
}

// BackfillIfSparse tops up a city whose history is too thin for meaningful
// aggregates. When the row count is at or below minRows it inserts one week
// of synthetic rows, four per day, and reports how many were written.
// Synthetic rows are flagged so they can be told apart from live data. The
// week ends yesterday: today stays untouched so the live series and the
// gap gate never see a synthetic timestamp.
func (e *Engine) BackfillIfSparse(ctx context.Context, key weather.CityKey, minRows int) (int, error) {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}

	count, err := e.store.CountHistory(ctx, key)
	if err != nil {
		return 0, err
	}
	if count > minRows {
		return 0, nil
	}

	day := e.midnight()
	inserted := 0
	for offset := 1; offset <= backfillDays; offset++ {
		base := day.AddDate(0, 0, -offset)
		for _, hour := range backfillHours {
			record := weather.HistoryRecord{
				Country:     key.Country,
				City:        key.City,
				Temperature: e.uniform(22, 32),
				Humidity:    e.uniform(50, 80),
				Wind:        e.uniform(2, 6),
				Timestamp:   base.Add(time.Duration(hour) * time.Hour),
				Synthetic:   true,
			}
			if err := e.store.InsertHistory(ctx, record); err != nil {
				return inserted, err
			}
			inserted++
		}
	}

	e.metrics.BackfillRows.Add(float64(inserted))
	e.logger.Info().
		Str("city", key.Key()).
		Int("existing_rows", count).
		Int("inserted", inserted).
		Msg("backfilled sparse city history")

	return inserted, nil
}

// uniform draws from [min, max) rounded to one decimal.
func (e *Engine) uniform(min, max float64) float64 {
	return round1(min + e.rand.Float64()*(max-min))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
