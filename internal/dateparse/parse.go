package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// genericLayouts are tried first, in order.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"Mon Jan 2 2006",
}

var (
	compactPattern   = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	separatedPattern = regexp.MustCompile(`^(\d{2}|\d{4})[./-](\d{1,2})[./-](\d{1,2})$`)
)

// Parse interprets text as a calendar instant. Values without a zone resolve in UTC.
func Parse(text string) (time.Time, bool) {
	return ParseIn(text, time.UTC)
}

// ParseIn is Parse with date-only and zone-less values resolved in loc.
func ParseIn(text string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}

	if m := compactPattern.FindStringSubmatch(s); m != nil {
		return calendarDate(m[1], m[2], m[3], loc)
	}

	if m := separatedPattern.FindStringSubmatch(s); m != nil {
		return calendarDate(m[1], m[2], m[3], loc)
	}

	return time.Time{}, false
}

// PivotYear expands a two-digit year: below 50 is 20xx, otherwise 19xx.
func PivotYear(year int) int {
	if year >= 100 {
		return year
	}
	if year < 50 {
		return 2000 + year
	}
	return 1900 + year
}

// calendarDate builds midnight of y-m-d, rejecting dates that would normalize
// into another day (Feb 31, month 13).
func calendarDate(ys, ms, ds string, loc *time.Location) (time.Time, bool) {
	y, err := strconv.Atoi(ys)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(ds)
	if err != nil {
		return time.Time{}, false
	}
	if len(ys) == 2 {
		y = PivotYear(y)
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
