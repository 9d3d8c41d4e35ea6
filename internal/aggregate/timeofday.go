package aggregate

import (
	"fmt"

	"github.com/weatherdash/weatherdash/internal/weather"
)

// TimeOfDay is a named slice of the civil day. The four non-All slots
// partition the 24 hours exactly: every hour belongs to one slot.
type TimeOfDay string

const (
	TimeOfDayAll       TimeOfDay = "all"
	TimeOfDayNight     TimeOfDay = "night"     // 00:00-05:59
	TimeOfDayMorning   TimeOfDay = "morning"   // 06:00-11:59
	TimeOfDayAfternoon TimeOfDay = "afternoon" // 12:00-17:59
	TimeOfDayEvening   TimeOfDay = "evening"   // 18:00-23:59
)

// ParseTimeOfDay maps a request parameter onto a slot. Empty means all.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	switch TimeOfDay(s) {
	case "", TimeOfDayAll:
		return TimeOfDayAll, nil
	case TimeOfDayNight, TimeOfDayMorning, TimeOfDayAfternoon, TimeOfDayEvening:
		return TimeOfDay(s), nil
	default:
		return "", fmt.Errorf("unknown time of day %q", s)
	}
}

// Contains reports whether the given hour (0-23) falls in the slot.
func (t TimeOfDay) Contains(hour int) bool {
	switch t {
	case TimeOfDayAll:
		return true
	case TimeOfDayNight:
		return hour >= 0 && hour <= 5
	case TimeOfDayMorning:
		return hour >= 6 && hour <= 11
	case TimeOfDayAfternoon:
		return hour >= 12 && hour <= 17
	case TimeOfDayEvening:
		return hour >= 18 && hour <= 23
	default:
		return false
	}
}

// FilterByTimeOfDay returns the records whose timestamp hour falls in the
// slot, preserving order. The result is always a fresh slice; callers may
// mutate it without touching the input.
func FilterByTimeOfDay(records []weather.HistoryRecord, slot TimeOfDay) []weather.HistoryRecord {
	filtered := make([]weather.HistoryRecord, 0, len(records))
	for _, r := range records {
		if slot.Contains(r.Timestamp.Hour()) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
