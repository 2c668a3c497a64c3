// Package dateparse implements the CLI's --since/--until parsing order:
// ISO 8601 date-time, then ISO 8601 date, then a calendar-aware human
// duration subtracted from now.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const isoDate = "2006-01-02"

// unitPattern matches one "<count><unit>" term of a human duration, e.g.
// "1year", "6months", "2weeks", "3days", "12hours", "30minutes", "45seconds".
// Units are matched longest-prefix-first so "month" isn't swallowed by a
// hypothetical "m" alias; only whole, unsigned terms are accepted.
var unitPattern = regexp.MustCompile(`(?i)(\d+)\s*(years?|months?|weeks?|days?|hours?|minutes?|seconds?)`)

// Parse interprets s as a point in time per the CLI's fixed fallback order.
// now is injected so callers (and tests) control what "current UTC" means;
// production callers pass time.Now().UTC().
func Parse(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if t, err := time.Parse(isoDate, s); err == nil {
		return t.UTC(), nil
	}

	return parseCalendarOffset(s, now)
}

// parseCalendarOffset parses a whitespace-separated sequence of
// "<count><unit>" terms (e.g. "1year 6months", "2weeks 3days") and subtracts
// the total from now. Years and months are applied via time.AddDate so the
// subtraction is calendar-aware (a year is not flattened to 365*24h); the
// remaining units accumulate into a single time.Duration.
func parseCalendarOffset(s string, now time.Time) (time.Time, error) {
	matches := unitPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return time.Time{}, fmt.Errorf("unparseable date/duration %q", s)
	}

	var consumed int

	var years, months, days int

	var dur time.Duration

	for _, m := range matches {
		consumed += nonSpaceLen(s[m[0]:m[1]])

		count, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable date/duration %q: %w", s, err)
		}

		switch unit := normalizeUnit(s[m[4]:m[5]]); unit {
		case "year":
			years += count
		case "month":
			months += count
		case "week":
			days += count * 7
		case "day":
			days += count
		case "hour":
			dur += time.Duration(count) * time.Hour
		case "minute":
			dur += time.Duration(count) * time.Minute
		case "second":
			dur += time.Duration(count) * time.Second
		}
	}

	if nonSpaceLen(s) != consumed {
		return time.Time{}, fmt.Errorf("unparseable date/duration %q", s)
	}

	return now.AddDate(-years, -months, -days).Add(-dur), nil
}

// normalizeUnit lowercases and strips the trailing "s" so "Year"/"years" and
// "Month"/"months" map to the same switch case.
func normalizeUnit(unit string) string {
	lower := []byte(unit)
	for i, b := range lower {
		if b >= 'A' && b <= 'Z' {
			lower[i] = b - 'A' + 'a'
		}
	}

	if n := len(lower); n > 0 && lower[n-1] == 's' {
		lower = lower[:n-1]
	}

	return string(lower)
}

// nonSpaceLen counts s's non-whitespace bytes, so term matches can be
// compared against the input with separating spaces ignored.
func nonSpaceLen(s string) int {
	n := 0

	for _, r := range s {
		if r != ' ' && r != '\t' {
			n++
		}
	}

	return n
}
