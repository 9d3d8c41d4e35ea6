// Package store provides persistence for weather readings and history
// records, with a Postgres implementation for production and an in-memory
// implementation for tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/weatherdash/weatherdash/internal/weather"
)

// Store error kinds. Implementations wrap the underlying driver error so
// callers can match with errors.Is while keeping the original detail.
var (
	// ErrConnection indicates the store is unreachable. Fatal for the
	// current operation, recoverable for the process.
	ErrConnection = errors.New("store connection error")

	// ErrConstraint indicates a schema mismatch or bad types. Should not
	// occur in steady state; treat as a bug signal.
	ErrConstraint = errors.New("store constraint violation")

	// ErrQuery indicates malformed query parameters.
	ErrQuery = errors.New("store query error")
)

// Order selects the timestamp ordering of a history query.
type Order int

const (
	OrderAscending Order = iota
	OrderDescending
)

// HistoryQuery narrows and orders a history lookup.
type HistoryQuery struct {
	Order Order

	// OnDay, when non-zero, restricts results to the calendar day starting
	// at this instant (callers pass midnight in the civil timezone).
	OnDay time.Time
}

// DailyAverageQuery shapes a daily-average aggregation.
type DailyAverageQuery struct {
	// Before, when non-zero, excludes rows at or after this instant.
	// Passing today's midnight excludes the current (incomplete) day.
	Before time.Time

	// Limit caps the number of days returned, newest first.
	Limit int
}

// DailyAverage is one aggregated day: the calendar day and its mean
// temperature rounded to one decimal.
type DailyAverage struct {
	Day     time.Time `json:"day"`
	AvgTemp float64   `json:"avgTemp"`
}

// Store is the persistence contract used by the scheduler and the
// aggregation engine. All operations are transactional at statement
// granularity; there is no batch transaction across keys.
type Store interface {
	// InsertReading appends one live reading. No upsert semantics.
	InsertReading(ctx context.Context, r weather.Reading) error

	// InsertHistory appends one history record.
	InsertHistory(ctx context.Context, h weather.HistoryRecord) error

	// LastIngestedAt returns the newest history timestamp for the key.
	// ok is false when no rows exist for the key.
	LastIngestedAt(ctx context.Context, key weather.CityKey) (t time.Time, ok bool, err error)

	// CountHistory returns the number of history rows for the key.
	CountHistory(ctx context.Context, key weather.CityKey) (int, error)

	// QueryHistory returns history records for the key.
	QueryHistory(ctx context.Context, key weather.CityKey, q HistoryQuery) ([]weather.HistoryRecord, error)

	// QueryDailyAverage groups history by calendar day, averages the
	// temperature rounded to one decimal, orders newest day first and
	// truncates to the limit.
	QueryDailyAverage(ctx context.Context, key weather.CityKey, q DailyAverageQuery) ([]DailyAverage, error)

	// PurgeOlderThan deletes rows strictly older than cutoff from both the
	// reading and history tables and reports how many went away. A row at
	// exactly the cutoff is retained. Irreversible.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
