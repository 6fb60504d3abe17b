// Package when turns the free-text date and time expressions handed over by
// the slot extractor into concrete UTC instants. Dates are calendar dates in
// the owner's timezone and may be written against the Jalali calendar; they
// are converted to Gregorian before the time component is combined and the
// result localized.
package when

import (
	"strings"
	"time"
)

// Kind classifies a resolver outcome.
type Kind int

const (
	// Failure means neither component produced anything usable.
	Failure Kind = iota
	// Complete carries a concrete UTC instant.
	Complete
	// PartialDate means a time resolved but no date did.
	PartialDate
	// PartialTime means a date resolved but no time did. The resolver
	// never fills in a default time; asking is the orchestrator's job.
	PartialTime
	// AmbiguousMeridiem means a bare 1-12 hour with no am/pm marker.
	AmbiguousMeridiem
)

func (k Kind) String() string {
	switch k {
	case Complete:
		return "complete"
	case PartialDate:
		return "partial_date"
	case PartialTime:
		return "partial_time"
	case AmbiguousMeridiem:
		return "ambiguous_meridiem"
	}
	return "failure"
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Kind Kind
	At   time.Time // UTC, set when Kind == Complete
	Hour int       // the bare hour, set when Kind == AmbiguousMeridiem
}

// Resolve combines a date expression and a time expression against a
// reference instant and the owner's timezone. Either expression may be
// empty. Relative time offsets ("in 30 minutes") count from now when no
// date was given, otherwise from midnight of the resolved date.
func Resolve(dateExpr, timeExpr string, now time.Time, loc *time.Location) Resolution {
	nowLocal := now.In(loc)

	dateExpr = normalizeDigits(strings.ToLower(strings.TrimSpace(dateExpr)))
	timeExpr = normalizeDigits(strings.ToLower(strings.TrimSpace(timeExpr)))

	var (
		day     civilDate
		haveDay bool
	)
	if dateExpr != "" {
		day, haveDay = parseDate(dateExpr, nowLocal)
	}

	var (
		clock     civilClock
		haveClock bool
		bareHour  = -1
	)
	if timeExpr != "" {
		switch tr := parseTime(timeExpr, nowLocal, day, haveDay); tr.kind {
		case timeAbsolute:
			clock, haveClock = tr.clock, true
		case timeInstant:
			// relative offsets resolve date and time at once
			return Resolution{Kind: Complete, At: tr.at.UTC()}
		case timeAmbiguous:
			bareHour = tr.clock.hour
		}
	}

	switch {
	case bareHour >= 0:
		return Resolution{Kind: AmbiguousMeridiem, Hour: bareHour}
	case haveDay && haveClock:
		at := time.Date(day.year, day.month, day.day, clock.hour, clock.minute, 0, 0, loc)
		return Resolution{Kind: Complete, At: at.UTC()}
	case haveDay:
		return Resolution{Kind: PartialTime}
	case haveClock:
		return Resolution{Kind: PartialDate}
	}
	return Resolution{Kind: Failure}
}

// Meridiem interprets a clarification answer for a bare hour. It reports
// whether the hour falls after noon, and whether the answer was understood.
func Meridiem(word string) (pm bool, ok bool) {
	switch strings.TrimSpace(strings.ToLower(word)) {
	case "صبح", "am", "a.m.", "a.m", "morning", "in the morning":
		return false, true
	case "ظهر", "بعد از ظهر", "بعدازظهر", "عصر", "غروب", "شب", "امشب",
		"pm", "p.m.", "p.m", "afternoon", "evening", "night", "tonight", "noon",
		"in the afternoon", "in the evening", "at night":
		return true, true
	}
	return false, false
}

// ClockHour applies a meridiem to a bare 1-12 hour: 12am is midnight,
// 12pm stays noon.
func ClockHour(hour int, pm bool) int {
	if pm {
		if hour == 12 {
			return 12
		}
		return hour + 12
	}
	if hour == 12 {
		return 0
	}
	return hour
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

type civilClock struct {
	hour   int
	minute int
}
