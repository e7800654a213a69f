package date

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the ISO calendar-date layout used for every date string that
// crosses a package boundary (task records, API payloads, storage rows).
const Layout = "2006-01-02"

// ErrInvalidDate is returned when a string is not an ISO calendar date.
var ErrInvalidDate = errors.New("invalid date")

// Of returns the calendar date y-m-d as a UTC midnight time.Time.
func Of(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Parse parses an ISO "YYYY-MM-DD" string into a calendar date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// MustParse is Parse for literals in tests and tables. It panics on error.
func MustParse(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Format renders t as "YYYY-MM-DD".
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Truncate drops the time-of-day of t, keeping the calendar date as seen in
// t's own location.
func Truncate(t time.Time) time.Time {
	return Of(t.Year(), t.Month(), t.Day())
}

// AddDays moves d by n calendar days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// AddWeeks moves d by n weeks.
func AddWeeks(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, 7*n)
}

// StartOfWeek returns the Monday of the Monday-based week containing d.
func StartOfWeek(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return AddDays(d, -offset)
}

// EndOfWeek returns the Sunday of the Monday-based week containing d.
func EndOfWeek(d time.Time) time.Time {
	return AddDays(StartOfWeek(d), 6)
}

// NextMonday returns the first Monday strictly after d.
func NextMonday(d time.Time) time.Time {
	return AddWeeks(StartOfWeek(d), 1)
}

// IsWeekend reports whether d is a Saturday or a Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// WeeksBetween returns floor((b-a)/7days) for two calendar dates.
func WeeksBetween(a, b time.Time) int {
	days := DaysBetween(a, b)
	if days < 0 {
		return -((-days + 6) / 7)
	}
	return days / 7
}

// Within reports whether d lies in [start, end], both ends inclusive.
func Within(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
