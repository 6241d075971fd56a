package billing

import (
	"strconv"
	"strings"
	"time"
)

// DisplayDateLayout is the default rendering of a calendar date.
const DisplayDateLayout = "02/01/2006"

// DisplayDateTimeLayout is used for invoice timestamps.
const DisplayDateTimeLayout = "02/01/2006 15:04:05"

// ParseDate parses a calendar date from heterogeneous text.
// Accepted: D/M/YYYY, D-M-YYYY, D/M/YY, D-M-YY and YYYY-MM-DD. A trailing time
// component ("28/02/2025 09:15:00", "2025-02-28T09:15:00Z") is ignored.
// Returns false on empty or unparseable input.
// This is a PURE function.
func ParseDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}

	sep := "/"
	if !strings.Contains(s, "/") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		nums[i] = n
	}

	var year, month, day int
	switch {
	case len(parts[0]) == 4:
		year, month, day = nums[0], nums[1], nums[2]
	case len(parts[2]) == 4:
		day, month, year = nums[0], nums[1], nums[2]
	case len(parts[2]) == 2:
		day, month, year = nums[0], nums[1], 2000+nums[2]
	default:
		return time.Time{}, false
	}

	return makeDate(year, month, day)
}

// makeDate builds a canonical date and rejects values that time.Date would normalise.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	if day > DaysIn(year, time.Month(month)) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// FormatDate renders t as DD/MM/YYYY. The zero time renders as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayDateLayout)
}

// FormatDateTime renders t as DD/MM/YYYY HH:MM:SS.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayDateTimeLayout)
}

// DateOf returns the calendar date of t (in t's own location) as midnight UTC.
// All date comparisons in this package operate on values of this form.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween returns the whole number of days from a to b (negative if b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}
