package domain

import (
	"fmt"
	"time"
)

// dayLayout is the canonical calendar-day format used across all stores.
const dayLayout = "2006-01-02"

// Day is a calendar day in ISO format (YYYY-MM-DD).
// ISO formatting makes lexicographic order equal to chronological order,
// so Day values compare and sort with plain string operators.
type Day string

// ParseDay validates and normalizes an ISO date string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day(t.Format(dayLayout)), nil
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))
	return t
}

// AddDays returns the day shifted by n calendar days (n may be negative).
func (d Day) AddDays(n int) Day {
	return Day(d.Time().AddDate(0, 0, n).Format(dayLayout))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool { return d < other }

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d == "" }

func (d Day) String() string { return string(d) }

// DaysBetween returns the number of calendar days from a to b (b-a).
func DaysBetween(a, b Day) int {
	return int(b.Time().Sub(a.Time()).Hours() / 24)
}

// DayRange returns every day in [from, to] inclusive, in ascending order.
func DayRange(from, to Day) []Day {
	if to.Before(from) {
		return nil
	}
	n := DaysBetween(from, to) + 1
	days := make([]Day, 0, n)
	for d := from; !to.Before(d); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}
