package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Date expression patterns, checked in order. Numeric forms first, then
// month-name forms, then relative terms.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2},? \d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2} (?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{4}\b`),
	regexp.MustCompile(`(?i)\b(?:tomorrow|today|next week|next month|end of month|EOD|COB)\b`),
}

// relativeTerms maps recognized relative expressions to resolvers.
// Unrecognized terms yield no date, never an error.
var relativeTerms = map[string]func(now time.Time) time.Time{
	"today":        endOfBusinessDay,
	"eod":          endOfBusinessDay,
	"cob":          endOfBusinessDay,
	"tomorrow":     func(now time.Time) time.Time { return endOfBusinessDay(now.AddDate(0, 0, 1)) },
	"next week":    func(now time.Time) time.Time { return now.AddDate(0, 0, 7) },
	"next month":   func(now time.Time) time.Time { return now.AddDate(0, 0, 30) },
	"end of month": lastBusinessDayOfMonth,
}

// endOfBusinessDay returns the same calendar day at 17:00 local time.
func endOfBusinessDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 17, 0, 0, 0, t.Location())
}

// lastBusinessDayOfMonth returns the last day of t's month at 17:00 local time.
func lastBusinessDayOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	last := firstOfNext.AddDate(0, 0, -1)
	return endOfBusinessDay(last)
}

// FirstDate scans text for date expressions and returns the first one that
// resolves, or nil when none do.
func FirstDate(text string) *time.Time {
	for _, pattern := range datePatterns {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if d := parseDateExpression(text[loc[0]:loc[1]]); d != nil {
			return d
		}
	}
	return nil
}

// parseDateExpression resolves a single matched date expression.
func parseDateExpression(expr string) *time.Time {
	lower := strings.ToLower(strings.TrimSpace(expr))

	if resolve, ok := relativeTerms[lower]; ok {
		d := resolve(timeNow())
		return &d
	}

	if d, ok := parseNumericDate(expr); ok {
		return &d
	}
	if d, ok := parseMonthNameDate(expr); ok {
		return &d
	}
	return nil
}

// parseNumericDate handles M/D/Y (2 or 4-digit year) and ISO YYYY-MM-DD.
func parseNumericDate(expr string) (time.Time, bool) {
	if d, err := time.ParseInLocation("2006-01-02", expr, time.Local); err == nil {
		return d, true
	}

	parts := strings.Split(expr, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local), true
}

// parseMonthNameDate handles "Jan 2, 2026", "January 2 2026", and "2 Jan 2026".
func parseMonthNameDate(expr string) (time.Time, bool) {
	normalized := strings.ReplaceAll(expr, ",", "")
	fields := strings.Fields(normalized)
	if len(fields) != 3 {
		return time.Time{}, false
	}

	// Month names are abbreviated to three title-case letters so "Sep 5 2026",
	// "September 5 2026", and "sept 5 2026" all parse with one layout.
	for i, f := range fields {
		if !isDigits(f) && len(f) >= 3 {
			fields[i] = strings.ToUpper(f[:1]) + strings.ToLower(f[1:3])
		}
	}
	candidate := strings.Join(fields, " ")

	for _, layout := range []string{"Jan 2 2006", "2 Jan 2006"} {
		if d, err := time.ParseInLocation(layout, candidate, time.Local); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
