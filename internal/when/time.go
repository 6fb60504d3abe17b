package when

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type timeKind int

const (
	timeNone timeKind = iota
	timeAbsolute
	timeInstant
	timeAmbiguous
)

type timeResult struct {
	kind  timeKind
	clock civilClock
	at    time.Time // timeInstant only
}

// fixed wall-clock defaults for named periods of the day. Longer names come
// first: "ظهر" is a substring of "بعد از ظهر" and "شب" of "نصف شب", so
// lookup order matters, same as the weekday table.
var namedPeriods = []struct {
	name  string
	clock civilClock
}{
	{"بعد از ظهر", civilClock{15, 0}},
	{"بعدازظهر", civilClock{15, 0}},
	{"نصف شب", civilClock{0, 0}},
	{"نیمه شب", civilClock{0, 0}},
	{"امشب", civilClock{21, 0}},
	{"غروب", civilClock{18, 30}},
	{"صبح", civilClock{9, 0}},
	{"ظهر", civilClock{12, 30}},
	{"عصر", civilClock{17, 0}},
	{"شب", civilClock{21, 0}},
	{"afternoon", civilClock{15, 0}},
	{"midnight", civilClock{0, 0}},
	{"tonight", civilClock{21, 0}},
	{"morning", civilClock{9, 0}},
	{"evening", civilClock{17, 0}},
	{"noon", civilClock{12, 30}},
	{"night", civilClock{21, 0}},
}

var (
	reRelativeTimeFa = regexp.MustCompile(`^(نیم|یه ربع|یک ربع|\d+)\s*(ساعت|دقیقه)\s*(دیگه|دیگر|بعد|آینده)$`)
	reRelativeTimeEn = regexp.MustCompile(`^in\s+(\d+)\s*(minute|minutes|min|mins|hour|hours|hr|hrs)$`)
	reHalfHourEn     = regexp.MustCompile(`^(?:in\s+)?half\s+an?\s+hour$`)
	reQuarterEn      = regexp.MustCompile(`^(?:in\s+)?a\s+quarter(?:\s+of\s+an?\s+hour)?$`)
	reClock          = regexp.MustCompile(`^(\d{1,2})(?:\s*[:و]\s*(\d{1,2}))?\s*(.*)$`)
)

var meridiemAM = map[string]bool{
	"صبح": true, "am": true, "a.m": true, "a.m.": true, "a m": true,
	"in the morning": true,
}

var meridiemPM = map[string]bool{
	"ظهر": true, "بعد از ظهر": true, "بعدازظهر": true, "عصر": true,
	"غروب": true, "شب": true,
	"pm": true, "p.m": true, "p.m.": true, "p m": true,
	"in the afternoon": true, "in the evening": true, "at night": true,
}

// parseTime interprets a time expression. Relative offsets produce a full
// instant: counted from midnight of the resolved date when one was given,
// from nowLocal otherwise.
func parseTime(expr string, nowLocal time.Time, day civilDate, haveDay bool) timeResult {
	expr = strings.TrimSpace(strings.TrimPrefix(expr, "ساعت"))
	expr = strings.TrimSpace(strings.TrimSuffix(expr, "o'clock"))
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return timeResult{kind: timeNone}
	}

	if delta, ok := relativeOffset(expr); ok {
		base := nowLocal
		if haveDay {
			base = time.Date(day.year, day.month, day.day, 0, 0, 0, 0, nowLocal.Location())
		}
		return timeResult{kind: timeInstant, at: base.Add(delta)}
	}

	if m := reClock.FindStringSubmatch(expr); m != nil && m[1] != "" {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		hasMinute := false
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
			hasMinute = true
		}
		marker := strings.TrimSpace(m[3])

		if hour > 23 || minute > 59 {
			return timeResult{kind: timeNone}
		}

		switch {
		case meridiemAM[marker]:
			// a marker on an hour that is already 24-hour is redundant
			if hour >= 1 && hour <= 12 {
				hour = ClockHour(hour, false)
			}
			return timeResult{kind: timeAbsolute, clock: civilClock{hour, minute}}
		case meridiemPM[marker]:
			if hour >= 1 && hour <= 12 {
				hour = ClockHour(hour, true)
			}
			return timeResult{kind: timeAbsolute, clock: civilClock{hour, minute}}
		case marker != "":
			// trailing text we don't understand
			return timeResult{kind: timeNone}
		case hour >= 1 && hour <= 12 && !hasMinute:
			return timeResult{kind: timeAmbiguous, clock: civilClock{hour, 0}}
		default:
			// 0 or 13-23, or an explicit HH:MM, reads as 24-hour clock
			return timeResult{kind: timeAbsolute, clock: civilClock{hour, minute}}
		}
	}

	for _, p := range namedPeriods {
		if strings.Contains(expr, p.name) {
			return timeResult{kind: timeAbsolute, clock: p.clock}
		}
	}

	return timeResult{kind: timeNone}
}

func relativeOffset(expr string) (time.Duration, bool) {
	if m := reRelativeTimeFa.FindStringSubmatch(expr); m != nil {
		n := 0
		switch m[1] {
		case "نیم":
			return 30 * time.Minute, true
		case "یه ربع", "یک ربع":
			return 15 * time.Minute, true
		default:
			n, _ = strconv.Atoi(m[1])
		}
		if m[2] == "ساعت" {
			return time.Duration(n) * time.Hour, true
		}
		return time.Duration(n) * time.Minute, true
	}
	if m := reRelativeTimeEn.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(m[2], "h") {
			return time.Duration(n) * time.Hour, true
		}
		return time.Duration(n) * time.Minute, true
	}
	if reHalfHourEn.MatchString(expr) {
		return 30 * time.Minute, true
	}
	if reQuarterEn.MatchString(expr) {
		return 15 * time.Minute, true
	}
	return 0, false
}
