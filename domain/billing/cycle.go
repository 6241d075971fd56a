package billing

import "time"

// DefaultMaxProjectionCycles bounds NextFutureBillingDate (about eight years of monthly cycles).
const DefaultMaxProjectionCycles = 100

// AddMonthsClamped adds months to t, clamping the day to the last day of the
// resulting month (Jan 31 + 1 month = Feb 28/29).
// This is a PURE function.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	// Build from day 1 so time.Date never overflows into the following month.
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// NextBillingDate returns the billing date that follows reference for a client
// anchored on anchor. The anchor's day-of-month is reapplied every cycle and
// clamped to the length of the target month, so a client anchored on the 31st
// is billed on Feb 28 (29 in leap years) and back on Mar 31.
// This is a PURE function.
func NextBillingDate(anchor, reference time.Time) time.Time {
	target := AddMonthsClamped(reference, 1)
	day := anchor.Day()
	if last := DaysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}

// IsDueOn reports whether a cycle falls due on today. With no billing history the
// first cycle is one month after the anchor date.
// This is a PURE function.
func IsDueOn(anchor time.Time, lastBilled *time.Time, today time.Time) bool {
	reference := anchor
	if lastBilled != nil && !lastBilled.IsZero() {
		reference = *lastBilled
	}
	return NextBillingDate(anchor, reference).Equal(DateOf(today))
}

// NextFutureBillingDate fast-forwards from the last billed date (or the anchor)
// one cycle at a time until it reaches a date on or after today.
//
// At most maxCycles steps are taken (DefaultMaxProjectionCycles when maxCycles <= 0);
// capped reports that the limit was hit and the returned date is the last one computed.
// This is a PURE function.
func NextFutureBillingDate(anchor time.Time, lastBilled *time.Time, today time.Time, maxCycles int) (next time.Time, capped bool) {
	if maxCycles <= 0 {
		maxCycles = DefaultMaxProjectionCycles
	}
	today = DateOf(today)

	reference := DateOf(anchor)
	if lastBilled != nil && !lastBilled.IsZero() {
		reference = DateOf(*lastBilled)
	}

	for i := 0; i < maxCycles; i++ {
		next = NextBillingDate(anchor, reference)
		if !next.Before(today) {
			return next, false
		}
		reference = next
	}
	return next, true
}
