package aggregate

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

var testKey = weather.CityKey{Country: "IN", City: "Hyderabad"}

type stubForecaster struct {
	points []weather.ForecastPoint
	err    error
}

func (f *stubForecaster) FetchForecast(context.Context, weather.CityKey) ([]weather.ForecastPoint, error) {
	return f.points, f.err
}

func newTestEngine(mem *store.Memory, forecaster Forecaster, now time.Time) *Engine {
	return NewEngine(EngineConfig{
		Store:      mem,
		Forecaster: forecaster,
		Clock:      clockwork.NewFakeClockAt(now),
		Location:   time.UTC,
		Rand:       rand.New(rand.NewSource(1)),
		Logger:     zerolog.Nop(),
	})
}

func seedHistory(t *testing.T, mem *store.Memory, ts time.Time, temp float64) {
	t.Helper()
	require.NoError(t, mem.InsertHistory(context.Background(), weather.HistoryRecord{
		Country:     testKey.Country,
		City:        testKey.City,
		Temperature: temp,
		Humidity:    60,
		Wind:        3,
		Timestamp:   ts,
	}))
}

func TestDailyAveragesExcludesTodayAndOrdersAscending(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemory()

	seedHistory(t, mem, today.AddDate(0, 0, -2).Add(9*time.Hour), 20)
	seedHistory(t, mem, today.AddDate(0, 0, -1).Add(9*time.Hour), 30)
	seedHistory(t, mem, today.Add(9*time.Hour), 99)

	e := newTestEngine(mem, nil, now)

	averages, err := e.DailyAverages(context.Background(), testKey, 7, true)
	require.NoError(t, err)
	require.Len(t, averages, 2, "the accumulating current day stays out")
	assert.True(t, averages[0].Day.Before(averages[1].Day), "chronological order for charting")
	assert.Equal(t, 20.0, averages[0].AvgTemp)
	assert.Equal(t, 30.0, averages[1].AvgTemp)

	// Without the exclusion today's partial rows count as a day.
	all, err := e.DailyAverages(context.Background(), testKey, 7, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDailyAveragesKeepsMostRecentDaysWhenLimited(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemory()

	for offset := 1; offset <= 5; offset++ {
		seedHistory(t, mem, today.AddDate(0, 0, -offset).Add(9*time.Hour), float64(10+offset))
	}

	e := newTestEngine(mem, nil, now)

	averages, err := e.DailyAverages(context.Background(), testKey, 3, true)
	require.NoError(t, err)
	require.Len(t, averages, 3)
	// The three newest complete days, not the three oldest.
	assert.Equal(t, today.AddDate(0, 0, -3), averages[0].Day)
	assert.Equal(t, today.AddDate(0, 0, -1), averages[2].Day)
}

func TestForecastDailyAverages(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	forecaster := &stubForecaster{points: []weather.ForecastPoint{
		{Time: now.Add(-time.Hour), Temperature: 99},    // today, ignored
		{Time: now.Add(3 * time.Hour), Temperature: 99}, // still today, ignored
		{Time: tomorrow.Add(6 * time.Hour), Temperature: 20},
		{Time: tomorrow.Add(12 * time.Hour), Temperature: 20.25},
		{Time: tomorrow.AddDate(0, 0, 1).Add(9 * time.Hour), Temperature: 25},
	}}

	e := newTestEngine(store.NewMemory(), forecaster, now)

	averages, err := e.ForecastDailyAverages(context.Background(), testKey, 5)
	require.NoError(t, err)
	require.Len(t, averages, 2)
	assert.Equal(t, tomorrow, averages[0].Day)
	assert.Equal(t, 20.1, averages[0].AvgTemp)
	assert.Equal(t, tomorrow.AddDate(0, 0, 1), averages[1].Day)
	assert.Equal(t, 25.0, averages[1].AvgTemp)
}

func TestForecastDailyAveragesEmptyForecast(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	e := newTestEngine(store.NewMemory(), &stubForecaster{}, now)

	averages, err := e.ForecastDailyAverages(context.Background(), testKey, 5)
	require.NoError(t, err)
	assert.Empty(t, averages, "no forecast is an empty result, not an error")
}

func TestBackfillIfSparse(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("sparse city gets a full week", func(t *testing.T) {
		mem := store.NewMemory()
		for i := 0; i < 4; i++ {
			seedHistory(t, mem, now.Add(-time.Duration(i)*time.Hour), 25)
		}

		e := newTestEngine(mem, nil, now)
		inserted, err := e.BackfillIfSparse(ctx, testKey, DefaultMinRows)
		require.NoError(t, err)
		assert.Equal(t, 28, inserted, "seven days times four hours")

		count, err := mem.CountHistory(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, 32, count)
	})

	t.Run("dense city is untouched", func(t *testing.T) {
		mem := store.NewMemory()
		for i := 0; i < 10; i++ {
			seedHistory(t, mem, now.Add(-time.Duration(i)*time.Hour), 25)
		}

		e := newTestEngine(mem, nil, now)
		inserted, err := e.BackfillIfSparse(ctx, testKey, DefaultMinRows)
		require.NoError(t, err)
		assert.Zero(t, inserted)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		mem := store.NewMemory()
		for i := 0; i < DefaultMinRows; i++ {
			seedHistory(t, mem, now.Add(-time.Duration(i)*time.Hour), 25)
		}

		e := newTestEngine(mem, nil, now)
		inserted, err := e.BackfillIfSparse(ctx, testKey, DefaultMinRows)
		require.NoError(t, err)
		assert.Equal(t, 28, inserted)
	})

	t.Run("synthetic rows are flagged and in band", func(t *testing.T) {
		mem := store.NewMemory()
		e := newTestEngine(mem, nil, now)

		_, err := e.BackfillIfSparse(ctx, testKey, DefaultMinRows)
		require.NoError(t, err)

		records, err := mem.QueryHistory(ctx, testKey, store.HistoryQuery{})
		require.NoError(t, err)
		require.Len(t, records, 28)
		for _, r := range records {
			assert.True(t, r.Synthetic)
			assert.GreaterOrEqual(t, r.Temperature, 22.0)
			assert.LessOrEqual(t, r.Temperature, 32.0)
			assert.GreaterOrEqual(t, r.Humidity, 50.0)
			assert.LessOrEqual(t, r.Humidity, 80.0)
			assert.GreaterOrEqual(t, r.Wind, 2.0)
			assert.LessOrEqual(t, r.Wind, 6.0)
			assert.Contains(t, []int{0, 6, 12, 18}, r.Timestamp.Hour())
		}
	})

	t.Run("rows end yesterday, today stays live only", func(t *testing.T) {
		mem := store.NewMemory()
		e := newTestEngine(mem, nil, now)

		_, err := e.BackfillIfSparse(ctx, testKey, DefaultMinRows)
		require.NoError(t, err)

		today := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
		records, err := mem.QueryHistory(ctx, testKey, store.HistoryQuery{Order: store.OrderDescending})
		require.NoError(t, err)
		require.NotEmpty(t, records)
		assert.True(t, records[0].Timestamp.Before(today), "no synthetic row on or after today")
		assert.Equal(t, today.AddDate(0, 0, -1).Add(18*time.Hour), records[0].Timestamp)
		assert.Equal(t, today.AddDate(0, 0, -7), records[len(records)-1].Timestamp)
	})
}
