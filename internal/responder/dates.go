package responder

import (
	"fmt"
	"strings"
	"time"
)

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// dateLayouts are tried in order when parsing event timestamps.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func frenchDay(d int) string {
	if d == 1 {
		return "1er"
	}
	return fmt.Sprint(d)
}

// FormatDate renders t as "4 mai 2025" in its own time zone.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s %s %d", frenchDay(t.Day()), frenchMonths[t.Month()-1], t.Year())
}

// FormatDateRange phrases an event's date span in French:
//
//	le 4 mai 2025
//	du 4 au 12 mai 2025
//	du 28 avril au 2 mai 2025
//	du 28 décembre 2025 au 3 janvier 2026
//
// When either bound is missing or unparseable it falls back to
// "du <begin> au <end>" with "?" for missing values.
func FormatDateRange(begin, end string) string {
	b, okB := parseDate(begin)
	e, okE := parseDate(end)
	if !okB || !okE {
		return fmt.Sprintf("du %s au %s", orPlaceholder(begin, "?"), orPlaceholder(end, "?"))
	}
	if e.Before(b) {
		b, e = e, b
	}

	by, bm, bd := b.Date()
	ey, em, ed := e.Date()
	switch {
	case by == ey && bm == em && bd == ed:
		return "le " + FormatDate(b)
	case by == ey && bm == em:
		return fmt.Sprintf("du %s au %s", frenchDay(bd), FormatDate(e))
	case by == ey:
		return fmt.Sprintf("du %s %s au %s", frenchDay(bd), frenchMonths[bm-1], FormatDate(e))
	default:
		return fmt.Sprintf("du %s au %s", FormatDate(b), FormatDate(e))
	}
}

func orPlaceholder(s, placeholder string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return placeholder
}
