package domain

import (
	"strings"
	"time"
)

const (
	// DateLayout is the wire and storage format of every date
	DateLayout = "2006-01-02"
	// Today asks for valuation as of the current date
	Today = "today"
)

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, InvalidInput("date is required")
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, InvalidInput("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ResolveDate turns a requested valuation date into a concrete one. An empty
// value or "today" resolves to now's date.
func ResolveDate(requested string, now time.Time) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, Today) {
		return FormatDate(now), nil
	}
	if _, err := ParseDate(requested); err != nil {
		return "", err
	}
	return requested, nil
}

// DateRange lists every date from..to inclusive
func DateRange(from, to string) ([]string, error) {
	start, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, InvalidInput("date range end %s is before start %s", to, from)
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, FormatDate(d))
	}
	return dates, nil
}
