package jobs

import (
	"strings"
	"time"

	"badgerland/internal/models"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// dateOnly drops the clock and location, keeping the calendar date as seen in t's location.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextWeekday is the first day strictly after today falling on weekday.
func nextWeekday(today time.Time, weekday time.Weekday) time.Time {
	ahead := (int(weekday) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return today.AddDate(0, 0, ahead)
}

// NextPickupDate computes the next automatic pickup for a cadence. Weekly is the
// next weekday strictly after today, biweekly is 14 days after that and monthly
// is the first matching weekday of the following month. Manual cadences have
// no automatic pickup. The result is a calendar date at midnight UTC.
func NextPickupDate(today time.Time, weekday time.Weekday, cadence models.Cadence) (time.Time, bool) {
	today = dateOnly(today)
	switch cadence {
	case models.CadenceWeekly:
		return nextWeekday(today, weekday), true
	case models.CadenceBiweekly:
		return nextWeekday(today, weekday).AddDate(0, 0, 14), true
	case models.CadenceMonthly:
		first := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		ahead := (int(weekday) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, ahead), true
	default:
		return time.Time{}, false
	}
}

// cadenceSpacing is the shortest gap between two automatic pickups of a cadence.
func cadenceSpacing(cadence models.Cadence) int {
	switch cadence {
	case models.CadenceWeekly:
		return 7
	case models.CadenceBiweekly:
		return 14
	case models.CadenceMonthly:
		return 28
	default:
		return 0
	}
}
