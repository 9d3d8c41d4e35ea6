// Package handler provides HTTP handlers for the dashboard API.
package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/weatherdash/weatherdash/internal/aggregate"
	"github.com/weatherdash/weatherdash/internal/api/models"
	"github.com/weatherdash/weatherdash/internal/api/response"
	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

// Provider fetches live conditions for one city.
type Provider interface {
	FetchCurrent(ctx context.Context, key weather.CityKey) (*weather.Reading, error)
}

// WeatherHandler serves the dashboard read endpoints.
type WeatherHandler struct {
	store    store.Store
	engine   *aggregate.Engine
	provider Provider
	validate *validator.Validate
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(st store.Store, engine *aggregate.Engine, provider Provider) *WeatherHandler {
	return &WeatherHandler{
		store:    st,
		engine:   engine,
		provider: provider,
		validate: validator.New(),
	}
}

// cityParams are the query parameters shared by the per-city endpoints.
type cityParams struct {
	City    string `validate:"required"`
	Country string `validate:"required,len=2,alpha"`
}

func (h *WeatherHandler) cityKey(w http.ResponseWriter, r *http.Request) (weather.CityKey, bool) {
	params := cityParams{
		City:    r.URL.Query().Get("city"),
		Country: strings.ToUpper(r.URL.Query().Get("country")),
	}
	if err := h.validate.Struct(params); err != nil {
		response.BadRequest(w, r, "city and a 2-letter country are required", fieldErrors(err))
		return weather.CityKey{}, false
	}
	return weather.CityKey{City: params.City, Country: params.Country}, true
}

func fieldErrors(err error) []models.FieldError {
	var fields []models.FieldError
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		for _, fe := range verr {
			fields = append(fields, models.FieldError{
				Field:   strings.ToLower(fe.Field()),
				Message: fe.Tag(),
			})
		}
	}
	return fields
}

// window parses the optional time-of-day query parameter.
func (h *WeatherHandler) window(w http.ResponseWriter, r *http.Request) (aggregate.TimeOfDay, bool) {
	slot, err := aggregate.ParseTimeOfDay(r.URL.Query().Get("window"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return "", false
	}
	return slot, true
}

// days parses and bounds the days query parameter.
func days(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 7 {
		response.BadRequest(w, r, "days must be between 1 and 7", nil)
		return 0, false
	}
	return n, true
}

// Current handles GET /v1/weather/current. It fetches a live snapshot from
// the provider and decorates it with today's trend from the store. A store
// that cannot be read yields 503, never stale data presented as fresh.
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	key, ok := h.cityKey(w, r)
	if !ok {
		return
	}

	reading, err := h.provider.FetchCurrent(r.Context(), key)
	if err != nil {
		response.ServiceUnavailable(w, r, "weather provider unavailable")
		return
	}

	summary, err := h.engine.TodaySummary(r.Context(), key, aggregate.TimeOfDayAll)
	if err != nil {
		response.ServiceUnavailable(w, r, "data unavailable")
		return
	}

	last, hasHistory, err := h.store.LastIngestedAt(r.Context(), key)
	if err != nil {
		response.ServiceUnavailable(w, r, "data unavailable")
		return
	}

	result := models.CurrentWeather{
		State:   models.StateOK,
		Reading: reading,
		Status:  summary.Status,
		Delta:   summary.Delta,
	}
	if hasHistory {
		result.LastUpdated = &last
	} else {
		result.State = models.StateWaitingForFirstIngestion
	}

	response.JSON(w, r, http.StatusOK, result)
}

// History handles GET /v1/weather/history.
func (h *WeatherHandler) History(w http.ResponseWriter, r *http.Request) {
	key, ok := h.cityKey(w, r)
	if !ok {
		return
	}
	slot, ok := h.window(w, r)
	if !ok {
		return
	}

	order := store.OrderAscending
	switch r.URL.Query().Get("order") {
	case "", "asc":
	case "desc":
		order = store.OrderDescending
	default:
		response.BadRequest(w, r, "order must be asc or desc", nil)
		return
	}

	records, err := h.store.QueryHistory(r.Context(), key, store.HistoryQuery{Order: order})
	if err != nil {
		response.ServiceUnavailable(w, r, "data unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.History{
		City:    key.City,
		Country: key.Country,
		Window:  slot,
		Records: aggregate.FilterByTimeOfDay(records, slot),
	})
}

// Today handles GET /v1/weather/today.
func (h *WeatherHandler) Today(w http.ResponseWriter, r *http.Request) {
	key, ok := h.cityKey(w, r)
	if !ok {
		return
	}
	slot, ok := h.window(w, r)
	if !ok {
		return
	}

	summary, err := h.engine.TodaySummary(r.Context(), key, slot)
	if err != nil {
		response.ServiceUnavailable(w, r, "data unavailable")
		return
	}

	result := models.Today{
		City:    key.City,
		Country: key.Country,
		Window:  slot,
		Records: summary.Records,
		Status:  summary.Status,
		Delta:   summary.Delta,
	}
	if stats := todayStats(summary.Records); stats != nil {
		result.Stats = stats
	}

	response.JSON(w, r, http.StatusOK, result)
}

func todayStats(records []weather.HistoryRecord) *models.TodayStats {
	if len(records) == 0 {
		return nil
	}

	stats := &models.TodayStats{
		Min:   records[0].Temperature,
		Max:   records[0].Temperature,
		Count: len(records),
	}
	sum := 0.0
	for _, rec := range records {
		if rec.Temperature < stats.Min {
			stats.Min = rec.Temperature
		}
		if rec.Temperature > stats.Max {
			stats.Max = rec.Temperature
		}
		sum += rec.Temperature
	}
	stats.Avg = math.Round(sum/float64(len(records))*10) / 10
	return stats
}

// Daily handles GET /v1/weather/daily.
func (h *WeatherHandler) Daily(w http.ResponseWriter, r *http.Request) {
	key, ok := h.cityKey(w, r)
	if !ok {
		return
	}
	n, ok := days(w, r, 7)
	if !ok {
		return
	}

	averages, err := h.engine.DailyAverages(r.Context(), key, n, true)
	if err != nil {
		response.ServiceUnavailable(w, r, "data unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Daily{
		City:     key.City,
		Country:  key.Country,
		Averages: averages,
	})
}

// ForecastDaily handles GET /v1/weather/forecast/daily.
func (h *WeatherHandler) ForecastDaily(w http.ResponseWriter, r *http.Request) {
	key, ok := h.cityKey(w, r)
	if !ok {
		return
	}
	n, ok := days(w, r, 5)
	if !ok {
		return
	}

	averages, err := h.engine.ForecastDailyAverages(r.Context(), key, n)
	if err != nil {
		response.ServiceUnavailable(w, r, "weather provider unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Daily{
		City:     key.City,
		Country:  key.Country,
		Averages: averages,
	})
}

// Compare handles GET /v1/weather/compare. Cities are fetched in parallel
// and a failing city is reported in place without affecting the others.
func (h *WeatherHandler) Compare(w http.ResponseWriter, r *http.Request) {
	country := strings.ToUpper(r.URL.Query().Get("country"))
	if len(country) != 2 {
		response.BadRequest(w, r, "a 2-letter country is required", nil)
		return
	}

	var cities []string
	for _, c := range strings.Split(r.URL.Query().Get("cities"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	if len(cities) == 0 {
		response.BadRequest(w, r, "at least one city is required", nil)
		return
	}

	entries := make([]models.CompareEntry, len(cities))
	var wg sync.WaitGroup
	for i, city := range cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			reading, err := h.provider.FetchCurrent(r.Context(), weather.CityKey{City: city, Country: country})
			if err != nil {
				entries[i] = models.CompareEntry{City: city, Error: err.Error()}
				return
			}
			entries[i] = models.CompareEntry{City: city, Reading: reading}
		}(i, city)
	}
	wg.Wait()

	response.JSON(w, r, http.StatusOK, models.Compare{
		Country: country,
		Cities:  entries,
	})
}
