package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weatherdash/weatherdash/internal/weather"
)

// Postgres is the PostgreSQL implementation of Store. Schema creation is
// pre-provisioned (see migrations/); the store only reads and writes.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL store on an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InsertReading appends one live reading row.
func (s *Postgres) InsertReading(ctx context.Context, r weather.Reading) error {
	query := `
		INSERT INTO weather_data (
			city, country, temperature_c, feels_like_c,
			humidity_percent, pressure_hpa, wind_speed_mps,
			weather_condition, weather_description, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		r.City,
		r.Country,
		r.Temperature,
		r.FeelsLike,
		r.Humidity,
		r.Pressure,
		r.WindSpeed,
		string(r.Condition),
		r.Description,
		r.RecordedAt,
	)
	return classify(err)
}

// InsertHistory appends one history row.
func (s *Postgres) InsertHistory(ctx context.Context, h weather.HistoryRecord) error {
	query := `
		INSERT INTO weather_history (country, city, temperature, humidity, wind, recorded_at, synthetic)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		h.Country,
		h.City,
		h.Temperature,
		h.Humidity,
		h.Wind,
		h.Timestamp,
		h.Synthetic,
	)
	return classify(err)
}

// LastIngestedAt returns the newest history timestamp for the key.
func (s *Postgres) LastIngestedAt(ctx context.Context, key weather.CityKey) (time.Time, bool, error) {
	query := `
		SELECT MAX(recorded_at)
		FROM weather_history
		WHERE country = $1 AND city = $2
	`

	var last *time.Time
	err := s.pool.QueryRow(ctx, query, key.Country, key.City).Scan(&last)
	if err != nil {
		return time.Time{}, false, classify(err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

// CountHistory returns the number of history rows for the key.
func (s *Postgres) CountHistory(ctx context.Context, key weather.CityKey) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM weather_history
		WHERE country = $1 AND city = $2
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, key.Country, key.City).Scan(&count); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

// QueryHistory returns history records for the key, ordered and optionally
// restricted to one calendar day.
func (s *Postgres) QueryHistory(ctx context.Context, key weather.CityKey, q HistoryQuery) ([]weather.HistoryRecord, error) {
	query := `
		SELECT country, city, temperature, humidity, wind, recorded_at, synthetic
		FROM weather_history
		WHERE country = $1 AND city = $2
	`
	args := []any{key.Country, key.City}

	if !q.OnDay.IsZero() {
		query += fmt.Sprintf(" AND recorded_at >= $%d AND recorded_at < $%d", len(args)+1, len(args)+2)
		args = append(args, q.OnDay, q.OnDay.AddDate(0, 0, 1))
	}

	if q.Order == OrderDescending {
		query += " ORDER BY recorded_at DESC"
	} else {
		query += " ORDER BY recorded_at ASC"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var records []weather.HistoryRecord
	for rows.Next() {
		var h weather.HistoryRecord
		if err := rows.Scan(
			&h.Country,
			&h.City,
			&h.Temperature,
			&h.Humidity,
			&h.Wind,
			&h.Timestamp,
			&h.Synthetic,
		); err != nil {
			return nil, classify(err)
		}
		records = append(records, h)
	}

	return records, classify(rows.Err())
}

// QueryDailyAverage groups history rows into calendar-day averages, newest
// day first, truncated to the limit.
func (s *Postgres) QueryDailyAverage(ctx context.Context, key weather.CityKey, q DailyAverageQuery) ([]DailyAverage, error) {
	query := `
		SELECT recorded_at::date AS day,
		       ROUND(AVG(temperature)::numeric, 1)::float8 AS avg_temp
		FROM weather_history
		WHERE country = $1 AND city = $2
	`
	args := []any{key.Country, key.City}

	if !q.Before.IsZero() {
		query += fmt.Sprintf(" AND recorded_at < $%d", len(args)+1)
		args = append(args, q.Before)
	}

	query += " GROUP BY day ORDER BY day DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var averages []DailyAverage
	for rows.Next() {
		var a DailyAverage
		if err := rows.Scan(&a.Day, &a.AvgTemp); err != nil {
			return nil, classify(err)
		}
		averages = append(averages, a)
	}

	return averages, classify(rows.Err())
}

// PurgeOlderThan deletes rows strictly older than cutoff from both tables.
func (s *Postgres) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	tag, err := s.pool.Exec(ctx, `DELETE FROM weather_data WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return deleted, classify(err)
	}
	deleted += tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, `DELETE FROM weather_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return deleted, classify(err)
	}
	deleted += tag.RowsAffected()

	return deleted, nil
}

// classify maps a pgx error onto the store error taxonomy. SQLSTATE class 08
// is a connection failure, data/integrity/syntax classes are constraint
// signals, anything else from the server is a query error. Transport-level
// failures without a server error code count as connection errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08":
			return fmt.Errorf("%w: %v", ErrConnection, err)
		case "22", "23", "42":
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		default:
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// Ensure Postgres implements the Store interface.
var _ Store = (*Postgres)(nil)
