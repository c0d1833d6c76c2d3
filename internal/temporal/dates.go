package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/finquery/internal/domain/search/filter"
)

// Confidence assigned per pattern family. Relative phrases are unambiguous;
// bare month names may collide with ordinary words ("may").
const (
	confRelative  = 0.9
	confAbsolute  = 0.8
	confMonthOnly = 0.7
)

var (
	reLastWeek   = regexp.MustCompile(`\b(?:last|past)\s+week\b`)
	reThisWeek   = regexp.MustCompile(`\bthis\s+week\b`)
	reLastMonth  = regexp.MustCompile(`\blast\s+month\b`)
	reThisMonth  = regexp.MustCompile(`\bthis\s+month\b`)
	reNextMonth  = regexp.MustCompile(`\bnext\s+month\b`)
	reLastYear   = regexp.MustCompile(`\blast\s+year\b`)
	reThisYear   = regexp.MustCompile(`\bthis\s+year\b`)
	reLastNDays  = regexp.MustCompile(`\b(?:last|past)\s+(\d{1,3})\s+days?\b`)
	reLastNMonth = regexp.MustCompile(`\b(?:last|past)\s+(\d{1,2})\s+months?\b`)
	reYesterday  = regexp.MustCompile(`\byesterday\b`)
	reToday      = regexp.MustCompile(`\btoday\b`)

	// Named month with optional day ("june 27", "from june"). The optional
	// leading preposition is part of the span so stripping leaves clean text.
	reNamedMonth = regexp.MustCompile(
		`\b(?:(?:from|in|during|for|on)\s+)?` +
			`(january|february|march|april|may|june|july|august|september|october|november|december|` +
			`jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)` +
			`(?:\s+(\d{1,2}))?\b`)
)

var monthIndex = map[string]time.Month{
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

type dateMatch struct {
	span       string
	rng        filter.DateRange
	confidence float64
}

// parseDates finds temporal phrases in the lowercased query and resolves them
// against now. Multiple matches combine into one window spanning the earliest
// start and the latest end; an inverted pair ("next month to last month")
// swaps instead of failing the request.
func parseDates(lower string, now time.Time) (*filter.DateRange, float64, []string) {
	matches := collectDateMatches(lower, now)
	if len(matches) == 0 {
		return nil, 0, nil
	}

	combined := matches[0].rng
	confidence := matches[0].confidence
	spans := make([]string, 0, len(matches))
	for i, m := range matches {
		spans = append(spans, m.span)
		if i == 0 {
			continue
		}
		if m.rng.Start.Before(combined.Start) {
			combined.Start = m.rng.Start
		}
		if m.rng.End.After(combined.End) {
			combined.End = m.rng.End
		}
		if m.confidence < confidence {
			confidence = m.confidence
		}
	}

	// NewDateRange swaps an inverted window.
	rng := filter.NewDateRange(combined.Start, combined.End)
	return &rng, confidence, spans
}

func collectDateMatches(lower string, now time.Time) []dateMatch {
	today := truncateToDay(now)
	var out []dateMatch

	add := func(span string, start, end time.Time, conf float64) {
		out = append(out, dateMatch{
			span:       span,
			rng:        filter.DateRange{Start: start, End: end},
			confidence: conf,
		})
	}

	if m := reLastWeek.FindString(lower); m != "" {
		monday := startOfWeek(today).AddDate(0, 0, -7)
		add(m, monday, monday.AddDate(0, 0, 6), confRelative)
	}
	if m := reThisWeek.FindString(lower); m != "" {
		monday := startOfWeek(today)
		add(m, monday, monday.AddDate(0, 0, 6), confRelative)
	}
	if m := reLastMonth.FindString(lower); m != "" {
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		add(m, first, endOfMonth(first), confRelative)
	}
	if m := reThisMonth.FindString(lower); m != "" {
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		add(m, first, endOfMonth(first), confRelative)
	}
	if m := reNextMonth.FindString(lower); m != "" {
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		add(m, first, endOfMonth(first), confRelative)
	}
	if m := reLastYear.FindString(lower); m != "" {
		first := time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC)
		add(m, first, time.Date(today.Year()-1, 12, 31, 0, 0, 0, 0, time.UTC), confRelative)
	}
	if m := reThisYear.FindString(lower); m != "" {
		first := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		add(m, first, time.Date(today.Year(), 12, 31, 0, 0, 0, 0, time.UTC), confRelative)
	}
	if m := reLastNDays.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		add(m[0], today.AddDate(0, 0, -n), today, confRelative)
	}
	if m := reLastNMonth.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		add(m[0], today.AddDate(0, -n, 0), today, confRelative)
	}
	if m := reYesterday.FindString(lower); m != "" {
		y := today.AddDate(0, 0, -1)
		add(m, y, y, confRelative)
	}
	if m := reToday.FindString(lower); m != "" {
		add(m, today, today, confRelative)
	}

	// Named months only when no relative phrase already matched the text;
	// "last 3 months" must not re-trigger on "months".
	if len(out) == 0 {
		for _, m := range reNamedMonth.FindAllStringSubmatch(lower, -1) {
			month, ok := monthIndex[m[1]]
			if !ok {
				continue
			}
			if m[2] != "" {
				day, err := strconv.Atoi(m[2])
				if err != nil || day < 1 || day > 31 {
					continue
				}
				d := time.Date(today.Year(), month, day, 0, 0, 0, 0, time.UTC)
				add(strings.TrimSpace(m[0]), d, d, confAbsolute)
				continue
			}
			first := time.Date(today.Year(), month, 1, 0, 0, 0, 0, time.UTC)
			add(strings.TrimSpace(m[0]), first, endOfMonth(first), confMonthOnly)
		}
	}

	return out
}

// startOfWeek returns the Monday of t's calendar week. Weeks are Monday-start.
func startOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started six days earlier
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

func endOfMonth(firstOfMonth time.Time) time.Time {
	return firstOfMonth.AddDate(0, 1, -1)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
