package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/weatherdash/weatherdash/internal/weather"
)

// Memory is a concurrency-safe in-memory Store. It backs tests and local
// development without a database; semantics mirror the Postgres store.
type Memory struct {
	mu       sync.RWMutex
	readings []weather.Reading
	history  []weather.HistoryRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// InsertReading appends one live reading.
func (s *Memory) InsertReading(_ context.Context, r weather.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

// InsertHistory appends one history record.
func (s *Memory) InsertHistory(_ context.Context, h weather.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, h)
	return nil
}

// LastIngestedAt returns the newest history timestamp for the key.
func (s *Memory) LastIngestedAt(_ context.Context, key weather.CityKey) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	found := false
	for _, h := range s.history {
		if h.Key() == key && h.Timestamp.After(last) {
			last = h.Timestamp
			found = true
		}
	}
	return last, found, nil
}

// CountHistory returns the number of history rows for the key.
func (s *Memory) CountHistory(_ context.Context, key weather.CityKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, h := range s.history {
		if h.Key() == key {
			count++
		}
	}
	return count, nil
}

// QueryHistory returns history records for the key.
func (s *Memory) QueryHistory(_ context.Context, key weather.CityKey, q HistoryQuery) ([]weather.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []weather.HistoryRecord
	for _, h := range s.history {
		if h.Key() != key {
			continue
		}
		if !q.OnDay.IsZero() {
			end := q.OnDay.AddDate(0, 0, 1)
			if h.Timestamp.Before(q.OnDay) || !h.Timestamp.Before(end) {
				continue
			}
		}
		records = append(records, h)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if q.Order == OrderDescending {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return records, nil
}

// QueryDailyAverage groups history rows into calendar-day averages, newest
// day first, truncated to the limit.
func (s *Memory) QueryDailyAverage(_ context.Context, key weather.CityKey, q DailyAverageQuery) ([]DailyAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, h := range s.history {
		if h.Key() != key {
			continue
		}
		if !q.Before.IsZero() && !h.Timestamp.Before(q.Before) {
			continue
		}
		day := dayOf(h.Timestamp)
		sums[day] += h.Temperature
		counts[day]++
	}

	averages := make([]DailyAverage, 0, len(sums))
	for day, sum := range sums {
		averages = append(averages, DailyAverage{
			Day:     day,
			AvgTemp: math.Round(sum/float64(counts[day])*10) / 10,
		})
	}

	sort.Slice(averages, func(i, j int) bool {
		return averages[i].Day.After(averages[j].Day)
	})

	if q.Limit > 0 && len(averages) > q.Limit {
		averages = averages[:q.Limit]
	}

	return averages, nil
}

// PurgeOlderThan deletes rows strictly older than cutoff from both streams.
func (s *Memory) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	kept := s.readings[:0]
	for _, r := range s.readings {
		if r.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.readings = kept

	keptHistory := s.history[:0]
	for _, h := range s.history {
		if h.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		keptHistory = append(keptHistory, h)
	}
	s.history = keptHistory

	return deleted, nil
}

// Readings returns a copy of all stored readings, insertion-ordered.
func (s *Memory) Readings() []weather.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]weather.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// dayOf truncates a timestamp to midnight in its own location.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Ensure Memory implements the Store interface.
var _ Store = (*Memory)(nil)
