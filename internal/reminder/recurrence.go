package reminder

import "time"

// customScanLimitDays bounds the day-by-day scan for custom patterns so a
// constraint set that can never match (e.g. day 31 in February-only) fails
// closed instead of spinning.
const customScanLimitDays = 366 * 4

// NextOccurrence computes the instant after current at which the pattern
// fires again. occurrence is the zero-based index of the current instance
// in its chain (Meta.RecurrenceInstance).
//
// Returns ok=false when the chain is exhausted: the computed instant exceeds
// EndDate, the next instance would exceed MaxOccurrences, or a custom
// constraint set never matches.
//
// Pure and deterministic; callers own clock and persistence.
func NextOccurrence(current time.Time, p RecurrencePattern, occurrence int) (time.Time, bool) {
	interval := p.Interval
	if interval <= 0 {
		interval = 1
	}
	if p.MaxOccurrences > 0 && occurrence+1 >= p.MaxOccurrences {
		return time.Time{}, false
	}

	var next time.Time
	switch p.Type {
	case RecurDaily:
		next = current.AddDate(0, 0, interval)
	case RecurWeekly:
		next = current.AddDate(0, 0, 7*interval)
	case RecurMonthly:
		next = addMonthsClamped(current, interval)
	case RecurYearly:
		next = addMonthsClamped(current, 12*interval)
	case RecurCustom:
		var ok bool
		next, ok = nextCustom(current, p, interval)
		if !ok {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}

	if p.EndDate != nil && next.After(*p.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

// addMonthsClamped does calendar month arithmetic with day-of-month clamping,
// so Jan 31 + 1 month is Feb 28/29 rather than Go's normalized Mar 2/3.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	shifted := first.AddDate(0, months, 0)
	if last := daysInMonth(shifted.Year(), shifted.Month()); d > last {
		d = last
	}
	return time.Date(shifted.Year(), shifted.Month(), d,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextCustom advances day by day (stepping interval days at a time) until the
// candidate satisfies every non-empty constraint set.
func nextCustom(current time.Time, p RecurrencePattern, interval int) (time.Time, bool) {
	cand := current
	for scanned := 0; scanned < customScanLimitDays; scanned += interval {
		cand = cand.AddDate(0, 0, interval)
		if matchesConstraints(cand, p) {
			return cand, true
		}
	}
	return time.Time{}, false
}

func matchesConstraints(t time.Time, p RecurrencePattern) bool {
	if len(p.DaysOfWeek) > 0 && !containsWeekday(p.DaysOfWeek, t.Weekday()) {
		return false
	}
	if len(p.DaysOfMonth) > 0 && !containsInt(p.DaysOfMonth, t.Day()) {
		return false
	}
	if len(p.MonthsOfYear) > 0 && !containsMonth(p.MonthsOfYear, t.Month()) {
		return false
	}
	return true
}

func containsWeekday(set []time.Weekday, v time.Weekday) bool {
	for _, d := range set {
		if d == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, d := range set {
		if d == v {
			return true
		}
	}
	return false
}

func containsMonth(set []time.Month, v time.Month) bool {
	for _, m := range set {
		if m == v {
			return true
		}
	}
	return false
}
