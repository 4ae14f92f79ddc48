package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidMonth = errors.New("invalid month")

// Month is a calendar month anchored to a reporting location.
type Month struct {
	year  int
	month time.Month
	loc   *time.Location
}

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// CurrentMonth returns the month containing now in the provided zone.
func CurrentMonth(now time.Time, loc *time.Location) Month {
	loc = EnsureLocation(loc)
	now = now.In(loc)
	return Month{year: now.Year(), month: now.Month(), loc: loc}
}

// ParseMonth builds a month from query-style year and month strings. Empty
// values fall back to the month containing now.
func ParseMonth(year, month string, now time.Time, loc *time.Location) (Month, error) {
	current := CurrentMonth(now, loc)
	y := current.year
	m := int(current.month)

	if s := strings.TrimSpace(year); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1970 || v > 9999 {
			return Month{}, fmt.Errorf("%w: year %q", ErrInvalidMonth, year)
		}
		y = v
	}
	if s := strings.TrimSpace(month); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 12 {
			return Month{}, fmt.Errorf("%w: month %q", ErrInvalidMonth, month)
		}
		m = v
	}
	return Month{year: y, month: time.Month(m), loc: current.loc}, nil
}

// Year returns the calendar year.
func (m Month) Year() int { return m.year }

// Number returns the month as 1-12.
func (m Month) Number() int { return int(m.month) }

// Prefix returns the YYYYMM key used to match normalized dates.
func (m Month) Prefix() string { return fmt.Sprintf("%04d%02d", m.year, int(m.month)) }

// Label returns YYYY-MM.
func (m Month) Label() string { return fmt.Sprintf("%04d-%02d", m.year, int(m.month)) }

// Start returns the inclusive start of the month.
func (m Month) Start() time.Time {
	return time.Date(m.year, m.month, 1, 0, 0, 0, 0, EnsureLocation(m.loc))
}

// End returns the exclusive end of the month.
func (m Month) End() time.Time { return m.Start().AddDate(0, 1, 0) }

// Contains reports whether the timestamp falls within [start, end).
func (m Month) Contains(ts time.Time) bool {
	return !ts.Before(m.Start()) && ts.Before(m.End())
}

// TruncateToDay normalizes the timestamp to midnight in the provided zone.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Today formats the current day as YYYY-MM-DD in the provided zone.
func Today(now time.Time, loc *time.Location) string {
	return TruncateToDay(now, loc).Format("2006-01-02")
}
