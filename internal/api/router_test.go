package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherdash/weatherdash/internal/aggregate"
	"github.com/weatherdash/weatherdash/internal/api/models"
	"github.com/weatherdash/weatherdash/internal/scheduler"
	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

var testNow = time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)

type stubProvider struct {
	errs map[string]error
}

func (p *stubProvider) FetchCurrent(_ context.Context, key weather.CityKey) (*weather.Reading, error) {
	if err := p.errs[key.City]; err != nil {
		return nil, err
	}
	return &weather.Reading{
		City: key.City, Country: key.Country,
		Temperature: 28.4, Humidity: 74, Condition: weather.ConditionClear,
	}, nil
}

func (p *stubProvider) FetchForecast(context.Context, weather.CityKey) ([]weather.ForecastPoint, error) {
	return []weather.ForecastPoint{
		{Time: testNow.Add(24 * time.Hour), Temperature: 26},
	}, nil
}

type brokenStore struct {
	store.Store
}

func (s *brokenStore) QueryHistory(context.Context, weather.CityKey, store.HistoryQuery) ([]weather.HistoryRecord, error) {
	return nil, store.ErrConnection
}

func newTestRouter(t *testing.T, st store.Store, provider *stubProvider) http.Handler {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	engine := aggregate.NewEngine(aggregate.EngineConfig{
		Store:      st,
		Forecaster: provider,
		Clock:      clock,
		Location:   time.UTC,
		Logger:     zerolog.Nop(),
	})
	sched := scheduler.New(scheduler.SchedulerConfig{
		Config:   scheduler.Config{Keys: []weather.CityKey{{Country: "IN", City: "Hyderabad"}}},
		Store:    st,
		Provider: provider,
		Clock:    clock,
		Logger:   zerolog.Nop(),
	})
	return NewRouter(RouterConfig{
		Version:  "test",
		Logger:   zerolog.Nop(),
		Store:    st,
		Engine:   engine,
		Provider: provider,
		Ticker:   sched,
	})
}

func seedToday(t *testing.T, mem *store.Memory, temps ...float64) {
	t.Helper()
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	for i, temp := range temps {
		require.NoError(t, mem.InsertHistory(context.Background(), weather.HistoryRecord{
			Country: "IN", City: "Hyderabad", Temperature: temp,
			Timestamp: day.Add(time.Duration(6+i) * time.Hour),
		}))
	}
}

func get(t *testing.T, router http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestCurrentWeather(t *testing.T) {
	mem := store.NewMemory()
	seedToday(t, mem, 25, 27)
	router := newTestRouter(t, mem, &stubProvider{})

	rec := get(t, router, "/v1/weather/current?city=Hyderabad&country=in")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.CurrentWeather
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.StateOK, got.State)
	assert.Equal(t, 28.4, got.Reading.Temperature)
	assert.Equal(t, aggregate.DirectionUp, got.Delta.Direction)
	require.NotNil(t, got.LastUpdated)
}

func TestCurrentWeatherWaitingForFirstIngestion(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubProvider{})

	rec := get(t, router, "/v1/weather/current?city=Hyderabad&country=IN")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.CurrentWeather
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.StateWaitingForFirstIngestion, got.State)
	assert.Nil(t, got.LastUpdated)
	assert.Equal(t, aggregate.DirectionNone, got.Delta.Direction)
}

func TestCurrentWeatherStoreFailureIs503(t *testing.T) {
	router := newTestRouter(t, &brokenStore{Store: store.NewMemory()}, &stubProvider{})

	rec := get(t, router, "/v1/weather/current?city=Hyderabad&country=IN")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestCurrentWeatherValidation(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubProvider{})

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/current?city=Hyderabad").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/current?country=IN").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/current?city=Hyderabad&country=IND").Code)
}

func TestTodayEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedToday(t, mem, 22, 27, 25)
	router := newTestRouter(t, mem, &stubProvider{})

	rec := get(t, router, "/v1/weather/today?city=Hyderabad&country=IN")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Today
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Stats)
	assert.Equal(t, 22.0, got.Stats.Min)
	assert.Equal(t, 27.0, got.Stats.Max)
	assert.Equal(t, 24.7, got.Stats.Avg)
	assert.Equal(t, 3, got.Stats.Count)
	assert.Equal(t, aggregate.StatusVolatile, got.Status)
}

func TestHistoryWindowFilter(t *testing.T) {
	mem := store.NewMemory()
	seedToday(t, mem, 22, 27, 25) // hours 6, 7, 8
	router := newTestRouter(t, mem, &stubProvider{})

	rec := get(t, router, "/v1/weather/history?city=Hyderabad&country=IN&window=morning")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.History
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Records, 3)

	rec = get(t, router, "/v1/weather/history?city=Hyderabad&country=IN&window=evening")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Records)

	assert.Equal(t, http.StatusBadRequest,
		get(t, router, "/v1/weather/history?city=Hyderabad&country=IN&window=midnight").Code)
	assert.Equal(t, http.StatusBadRequest,
		get(t, router, "/v1/weather/history?city=Hyderabad&country=IN&order=sideways").Code)
}

func TestDailyDaysValidation(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubProvider{})

	assert.Equal(t, http.StatusOK, get(t, router, "/v1/weather/daily?city=Hyderabad&country=IN").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/v1/weather/daily?city=Hyderabad&country=IN&days=1").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/v1/weather/daily?city=Hyderabad&country=IN&days=7").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/daily?city=Hyderabad&country=IN&days=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/daily?city=Hyderabad&country=IN&days=8").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/daily?city=Hyderabad&country=IN&days=week").Code)
}

func TestForecastDaily(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubProvider{})

	rec := get(t, router, "/v1/weather/forecast/daily?city=Hyderabad&country=IN")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Daily
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Averages, 1)
	assert.Equal(t, 26.0, got.Averages[0].AvgTemp)
}

func TestCompareIsolatesFailures(t *testing.T) {
	provider := &stubProvider{errs: map[string]error{"London": weather.ErrUnreachable}}
	router := newTestRouter(t, store.NewMemory(), provider)

	rec := get(t, router, "/v1/weather/compare?country=GB&cities=London,Bristol,Leeds")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Compare
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Cities, 3)

	assert.Equal(t, "London", got.Cities[0].City)
	assert.Nil(t, got.Cities[0].Reading)
	assert.NotEmpty(t, got.Cities[0].Error)

	for _, entry := range got.Cities[1:] {
		assert.NotNil(t, entry.Reading)
		assert.Empty(t, entry.Error)
	}
}

func TestCompareValidation(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubProvider{})

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/compare?cities=London").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/v1/weather/compare?country=GB&cities=").Code)
}

func TestIngestTick(t *testing.T) {
	mem := store.NewMemory()
	router := newTestRouter(t, mem, &stubProvider{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest/tick", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.TickReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Committed)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "committed", got.Results[0].Outcome)

	count, err := mem.CountHistory(context.Background(), weather.CityKey{Country: "IN", City: "Hyderabad"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubProvider{})

	rec := get(t, router, "/v1/ops/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}
