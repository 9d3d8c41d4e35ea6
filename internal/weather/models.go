// Package weather defines the domain model shared by the ingestion and
// aggregation layers: city keys, readings, history records and the fetch
// error taxonomy.
package weather

import (
	"errors"
	"fmt"
	"time"
)

// Fetch errors returned by weather providers. Callers classify failures
// with errors.Is; the scheduler logs them per key without aborting a batch.
var (
	// ErrFetchTimeout indicates the provider did not answer within the
	// request deadline.
	ErrFetchTimeout = errors.New("weather fetch timed out")

	// ErrUnreachable indicates a network failure or a non-2xx status.
	ErrUnreachable = errors.New("weather provider unreachable")

	// ErrMalformedResponse indicates the provider answered but the body
	// lacked the expected weather fields.
	ErrMalformedResponse = errors.New("malformed weather response")
)

// CityKey identifies a tracked city. It is the unit of independent
// scheduling: each key has its own last-ingested state and gap check.
type CityKey struct {
	// Country is a 2-letter ISO country code.
	Country string `json:"country"`

	// City is the provider-normalized city name.
	City string `json:"city"`
}

// Key returns the canonical string form used for logging and map keys.
func (k CityKey) Key() string {
	return k.Country + "/" + k.City
}

// Validate checks the key is usable for a provider query.
func (k CityKey) Validate() error {
	if k.City == "" {
		return errors.New("city must not be empty")
	}
	if len(k.Country) != 2 {
		return fmt.Errorf("country must be a 2-letter code, got %q", k.Country)
	}
	return nil
}

// Reading is a single live observation for one city at one instant.
// RecordedAt is a naive civil timestamp in the configured zone, assigned
// from the scheduler's clock at ingestion time, never from the provider.
type Reading struct {
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Temperature float64   `json:"temperatureC"`
	FeelsLike   float64   `json:"feelsLikeC"`
	Humidity    int       `json:"humidityPercent"`
	Pressure    int       `json:"pressureHpa"`
	WindSpeed   float64   `json:"windSpeedMps"`
	Condition   Condition `json:"condition"`
	Description string    `json:"description"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Key returns the CityKey this reading belongs to.
func (r Reading) Key() CityKey {
	return CityKey{Country: r.Country, City: r.City}
}

// HistoryRecord is a denormalized timeseries point used for trend and
// aggregate display. Rows come from live ingestion or from synthetic
// backfill; Synthetic distinguishes the two.
type HistoryRecord struct {
	Country     string    `json:"country"`
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Wind        float64   `json:"wind"`
	Timestamp   time.Time `json:"timestamp"`
	Synthetic   bool      `json:"synthetic,omitempty"`
}

// Key returns the CityKey this record belongs to.
func (h HistoryRecord) Key() CityKey {
	return CityKey{Country: h.Country, City: h.City}
}

// HistoryFromReading projects a live reading onto the history stream.
func HistoryFromReading(r Reading) HistoryRecord {
	return HistoryRecord{
		Country:     r.Country,
		City:        r.City,
		Temperature: r.Temperature,
		Humidity:    float64(r.Humidity),
		Wind:        r.WindSpeed,
		Timestamp:   r.RecordedAt,
	}
}

// ForecastPoint is a single forecast sample: a timestamp and the
// temperature expected at that time.
type ForecastPoint struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperatureC"`
}

// Condition is a short provider condition label, e.g. "Rain".
type Condition string

const (
	ConditionClear        Condition = "Clear"
	ConditionClouds       Condition = "Clouds"
	ConditionRain         Condition = "Rain"
	ConditionDrizzle      Condition = "Drizzle"
	ConditionThunderstorm Condition = "Thunderstorm"
	ConditionSnow         Condition = "Snow"
	ConditionMist         Condition = "Mist"
	ConditionHaze         Condition = "Haze"
	ConditionUnknown      Condition = "Unknown"
)
