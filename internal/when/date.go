package when

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

var jalaliMonths = map[string]ptime.Month{
	"فروردین":  ptime.Farvardin,
	"اردیبهشت": ptime.Ordibehesht,
	"خرداد":    ptime.Khordad,
	"تیر":      ptime.Tir,
	"مرداد":    ptime.Mordad,
	"شهریور":   ptime.Shahrivar,
	"مهر":      ptime.Mehr,
	"آبان":     ptime.Aban,
	"آذر":      ptime.Azar,
	"دی":       ptime.Dey,
	"بهمن":     ptime.Bahman,
	"اسفند":    ptime.Esfand,
}

var gregorianMonths = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// weekday names in both languages, mapped to Go's weekday numbering.
// Longer names come first: بare "شنبه" is a suffix of most Persian weekday
// names, so lookup order matters.
var weekdays = []struct {
	name string
	day  time.Weekday
}{
	{"چهارشنبه", time.Wednesday},
	{"پنج شنبه", time.Thursday},
	{"پنجشنبه", time.Thursday},
	{"سه شنبه", time.Tuesday},
	{"سه‌شنبه", time.Tuesday},
	{"یک شنبه", time.Sunday},
	{"یکشنبه", time.Sunday},
	{"دوشنبه", time.Monday},
	{"شنبه", time.Saturday},
	{"جمعه", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
}

var (
	reRelativeDateFa = regexp.MustCompile(`^(\d+)\s+(روز|هفته|ماه)\s+(دیگه|دیگر|بعد|آینده)$`)
	reRelativeDateEn = regexp.MustCompile(`^(?:in\s+)?(\d+)\s+(day|days|week|weeks|month|months)(?:\s+from\s+now|\s+later)?$`)
	reNumericDate    = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	reDayMonthName   = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(?:ماه\s+)?(\S+)$`)
	reMonthNameDay   = regexp.MustCompile(`^(\S+)\s+(\d{1,2})(?:st|nd|rd|th)?$`)
)

// parseDate turns a date expression into a Gregorian calendar date in
// nowLocal's location. The zero result with ok=false means the expression
// was not a date we recognize.
func parseDate(expr string, nowLocal time.Time) (civilDate, bool) {
	today := dateOf(nowLocal)

	switch expr {
	case "امروز", "today", "tonight", "امشب":
		return today, true
	case "فردا", "tomorrow":
		return today.plusDays(1, nowLocal.Location()), true
	case "پس فردا", "پس‌فردا", "پسفردا", "day after tomorrow", "the day after tomorrow":
		return today.plusDays(2, nowLocal.Location()), true
	}

	if m := reRelativeDateFa.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		return relativeDate(today, n, m[2], nowLocal.Location()), true
	}
	if m := reRelativeDateEn.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		return relativeDate(today, n, m[2], nowLocal.Location()), true
	}

	if m := reNumericDate.FindStringSubmatch(expr); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return civilDate{}, false
		}
		if year >= 1700 {
			// Gregorian year; reject normalization overflow (e.g. Feb 30)
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, nowLocal.Location())
			if d.Day() != day {
				return civilDate{}, false
			}
			return civilDate{year, time.Month(month), day}, true
		}
		return jalaliDate(year, ptime.Month(month), day, nowLocal.Location())
	}

	if d, ok := parseWeekday(expr, nowLocal); ok {
		return d, ok
	}

	if d, ok := parseDayMonthName(expr, nowLocal); ok {
		return d, ok
	}

	return civilDate{}, false
}

func relativeDate(today civilDate, n int, unit string, loc *time.Location) civilDate {
	switch unit {
	case "روز", "day", "days":
		return today.plusDays(n, loc)
	case "هفته", "week", "weeks":
		return today.plusDays(7*n, loc)
	default: // ماه / month(s)
		d := time.Date(today.year, today.month+time.Month(n), today.day, 0, 0, 0, 0, loc)
		return dateOf(d)
	}
}

// parseWeekday resolves a weekday name to its nearest future occurrence.
// If the named weekday is today's, it means next week's unless the
// expression also says "today".
func parseWeekday(expr string, nowLocal time.Time) (civilDate, bool) {
	for _, w := range weekdays {
		if !strings.Contains(expr, w.name) {
			continue
		}
		ahead := (int(w.day) - int(nowLocal.Weekday()) + 7) % 7
		if ahead == 0 && !strings.Contains(expr, "امروز") && !strings.Contains(expr, "today") {
			ahead = 7
		}
		return dateOf(nowLocal).plusDays(ahead, nowLocal.Location()), true
	}
	return civilDate{}, false
}

// parseDayMonthName handles "۵ تیر" and "12 december" / "december 12",
// inferring the current year and rolling to next year once the date has
// passed.
func parseDayMonthName(expr string, nowLocal time.Time) (civilDate, bool) {
	var dayStr, monthStr string
	if m := reDayMonthName.FindStringSubmatch(expr); m != nil {
		dayStr, monthStr = m[1], m[2]
	} else if m := reMonthNameDay.FindStringSubmatch(expr); m != nil {
		dayStr, monthStr = m[2], m[1]
	} else {
		return civilDate{}, false
	}

	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return civilDate{}, false
	}
	monthStr = strings.TrimSuffix(monthStr, "ماه")

	if jm, ok := jalaliMonths[monthStr]; ok {
		pnow := ptime.New(nowLocal)
		d, ok := jalaliDate(pnow.Year(), jm, day, nowLocal.Location())
		if !ok {
			return civilDate{}, false
		}
		if d.before(dateOf(nowLocal)) {
			return jalaliDate(pnow.Year()+1, jm, day, nowLocal.Location())
		}
		return d, true
	}

	if gm, ok := gregorianMonths[monthStr]; ok {
		d := civilDate{nowLocal.Year(), gm, day}
		if t := time.Date(d.year, d.month, d.day, 0, 0, 0, 0, nowLocal.Location()); t.Day() != day {
			return civilDate{}, false
		}
		if d.before(dateOf(nowLocal)) {
			d.year++
		}
		return d, true
	}

	return civilDate{}, false
}

// jalaliDate converts a Jalali calendar date to its Gregorian civil date.
func jalaliDate(year int, month ptime.Month, day int, loc *time.Location) (civilDate, bool) {
	pt := ptime.Date(year, month, day, 12, 0, 0, 0, loc)
	if pt.Year() != year || pt.Month() != month || pt.Day() != day {
		// ptime normalized an out-of-range component
		return civilDate{}, false
	}
	return dateOf(pt.Time()), true
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

func (d civilDate) plusDays(n int, loc *time.Location) civilDate {
	return dateOf(time.Date(d.year, d.month, d.day+n, 0, 0, 0, 0, loc))
}

func (d civilDate) before(o civilDate) bool {
	if d.year != o.year {
		return d.year < o.year
	}
	if d.month != o.month {
		return d.month < o.month
	}
	return d.day < o.day
}
