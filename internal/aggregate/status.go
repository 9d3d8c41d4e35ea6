package aggregate

import (
	"context"

	"github.com/weatherdash/weatherdash/internal/store"
	"github.com/weatherdash/weatherdash/internal/weather"
)

// Status describes how much a city's temperature moved within a day.
type Status string

const (
	StatusStable      Status = "stable"
	StatusFluctuating Status = "fluctuating"
	StatusVolatile    Status = "volatile"
)

// Temperature spread thresholds, in degrees Celsius, between the
// fluctuation bands.
const (
	stableSpread   = 1.5
	volatileSpread = 4.0
)

// ClassifyStatus buckets a day by its temperature spread. Fewer than three
// readings is not enough signal to call anything but stable.
func ClassifyStatus(temps []float64) Status {
	if len(temps) < 3 {
		return StatusStable
	}

	min, max := temps[0], temps[0]
	for _, t := range temps[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}

	spread := max - min
	switch {
	case spread < stableSpread:
		return StatusStable
	case spread < volatileSpread:
		return StatusFluctuating
	default:
		return StatusVolatile
	}
}

// Direction is the sign of a temperature change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"

	// DirectionNone marks a delta that could not be computed for lack of
	// a second reading.
	DirectionNone Direction = "none"
)

// Delta is the change between the two most recent readings of a day.
type Delta struct {
	Direction Direction `json:"direction"`
	Value     float64   `json:"value"`
}

// ComputeDelta compares the newest reading against the one before it.
// Records must be in chronological order.
func ComputeDelta(records []weather.HistoryRecord) Delta {
	if len(records) < 2 {
		return Delta{Direction: DirectionNone}
	}

	current := records[len(records)-1].Temperature
	previous := records[len(records)-2].Temperature
	value := round1(current - previous)

	switch {
	case value > 0:
		return Delta{Direction: DirectionUp, Value: value}
	case value < 0:
		return Delta{Direction: DirectionDown, Value: value}
	default:
		return Delta{Direction: DirectionFlat}
	}
}

// TodaySummary is the intraday view for one city: its readings so far,
// the movement classification and the latest change.
type TodaySummary struct {
	Records []weather.HistoryRecord `json:"records"`
	Status  Status                  `json:"status"`
	Delta   Delta                   `json:"delta"`
}

// TodaySummary loads today's history for a city, optionally narrowed to a
// time-of-day slot, and classifies it.
func (e *Engine) TodaySummary(ctx context.Context, key weather.CityKey, slot TimeOfDay) (*TodaySummary, error) {
	records, err := e.store.QueryHistory(ctx, key, store.HistoryQuery{
		OnDay: e.midnight(),
		Order: store.OrderAscending,
	})
	if err != nil {
		return nil, err
	}

	// Status and delta always work on the full day; the slot narrows only
	// the records handed back for display.
	delta := ComputeDelta(records)

	temps := make([]float64, len(records))
	for i, r := range records {
		temps[i] = r.Temperature
	}
	status := ClassifyStatus(temps)

	return &TodaySummary{
		Records: FilterByTimeOfDay(records, slot),
		Status:  status,
		Delta:   delta,
	}, nil
}
