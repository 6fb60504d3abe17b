package recur

import "time"

// Rule is how a reminder repeats after it fires.
type Rule string

const (
	None    Rule = "none"
	Daily   Rule = "daily"
	Weekly  Rule = "weekly"
	Monthly Rule = "monthly"
)

// Parse maps free-ish rule text (from the extractor or a stored row) to a
// Rule. Unknown input maps to None.
func Parse(s string) Rule {
	switch Rule(s) {
	case Daily, Weekly, Monthly:
		return Rule(s)
	}
	return None
}

func (r Rule) Recurring() bool {
	return r == Daily || r == Weekly || r == Monthly
}

// NextFireAfter returns the next occurrence after t under rule. Arithmetic
// is done on the wall clock in loc so a daily 08:00 reminder stays at 08:00
// across DST shifts. Monthly clamps the day of month to the target month's
// length instead of overflowing (Jan 31 -> Feb 28/29).
func NextFireAfter(t time.Time, rule Rule, loc *time.Location) time.Time {
	local := t.In(loc)
	switch rule {
	case Daily:
		return addLocalDays(local, 1)
	case Weekly:
		return addLocalDays(local, 7)
	case Monthly:
		return addLocalMonth(local)
	}
	return t
}

// RollToFuture advances candidate under rule until it is strictly after
// now. A rule of None returns the candidate untouched even if it is in the
// past; rejecting past one-shots is the orchestrator's call, not ours.
func RollToFuture(candidate time.Time, rule Rule, now time.Time, loc *time.Location) time.Time {
	if !rule.Recurring() {
		return candidate
	}
	t := candidate
	for !t.After(now) {
		t = NextFireAfter(t, rule, loc)
	}
	return t
}

func addLocalDays(local time.Time, days int) time.Time {
	y, m, d := local.Date()
	hh, mm, ss := local.Clock()
	return time.Date(y, m, d+days, hh, mm, ss, local.Nanosecond(), local.Location()).UTC()
}

func addLocalMonth(local time.Time) time.Time {
	y, m, d := local.Date()
	hh, mm, ss := local.Clock()
	ny, nm := y, m+1
	if nm > time.December {
		nm = time.January
		ny++
	}
	if last := daysIn(ny, nm); d > last {
		d = last
	}
	return time.Date(ny, nm, d, hh, mm, ss, local.Nanosecond(), local.Location()).UTC()
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month normalizes to the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
