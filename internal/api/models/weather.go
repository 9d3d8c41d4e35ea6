package models

import (
	"time"

	"github.com/weatherdash/weatherdash/internal/aggregate"
	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

// Dashboard states for the current-weather view.
const (
	// StateOK means live data and history are both available.
	StateOK = "ok"

	// StateWaitingForFirstIngestion means the city has no stored rows yet;
	// the dashboard shows the live snapshot without trend decorations.
	StateWaitingForFirstIngestion = "waiting_for_first_ingestion"
)

// CurrentWeather is the live snapshot for one city plus its intraday trend.
type CurrentWeather struct {
	State       string           `json:"state"`
	Reading     *weather.Reading `json:"reading"`
	Status      aggregate.Status `json:"status"`
	Delta       aggregate.Delta  `json:"delta"`
	LastUpdated *time.Time       `json:"lastUpdated,omitempty"`
}

// History is a filtered slice of one city's stored series.
type History struct {
	City    string                  `json:"city"`
	Country string                  `json:"country"`
	Window  aggregate.TimeOfDay     `json:"window"`
	Records []weather.HistoryRecord `json:"records"`
}

// TodayStats summarizes today's temperatures.
type TodayStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Today is the intraday view: records, stats and trend classification.
type Today struct {
	City    string                  `json:"city"`
	Country string                  `json:"country"`
	Window  aggregate.TimeOfDay     `json:"window"`
	Records []weather.HistoryRecord `json:"records"`
	Stats   *TodayStats             `json:"stats,omitempty"`
	Status  aggregate.Status        `json:"status"`
	Delta   aggregate.Delta         `json:"delta"`
}

// Daily is a list of per-day temperature averages for one city.
type Daily struct {
	City     string               `json:"city"`
	Country  string               `json:"country"`
	Averages []store.DailyAverage `json:"averages"`
}

// CompareEntry is one city's slot in a multi-city comparison. Error is set
// when that city's fetch failed; the other entries are unaffected.
type CompareEntry struct {
	City    string           `json:"city"`
	Reading *weather.Reading `json:"reading,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Compare is a side-by-side current-conditions comparison.
type Compare struct {
	Country string         `json:"country"`
	Cities  []CompareEntry `json:"cities"`
}

// TickKeyResult is the outcome of one city in a manually triggered tick.
type TickKeyResult struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// TickReport summarizes a manually triggered ingestion tick.
type TickReport struct {
	StartedAt  time.Time       `json:"startedAt"`
	DurationMs int64           `json:"durationMs"`
	Committed  int             `json:"committed"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Purged     int64           `json:"purged"`
	Results    []TickKeyResult `json:"results"`
}

// Health is the liveness response.
type Health struct {
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
	Version string    `json:"version,omitempty"`
}
