// Package query translates natural-language time and keyword queries into
// exact ranges over the record store and assembles bounded context text.
package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Range is a resolved time window. Unbounded means no time expression was
// recognized and the full retained history applies.
type Range struct {
	Start     time.Time
	End       time.Time
	Unbounded bool
}

// Contains reports whether a record timestamp (store.TimeLayout, local
// time) falls inside the range.
func (r Range) Contains(ts time.Time) bool {
	if r.Unbounded {
		return true
	}
	return !ts.Before(r.Start) && !ts.After(r.End)
}

type timeRule struct {
	pattern *regexp.Regexp
	resolve func(now time.Time, match []string) Range
}

// Time expressions are an ordered first-match rule list; new expressions
// are added by appending rules.
var timeRules = []timeRule{
	{
		pattern: regexp.MustCompile(`\bjust now\b`),
		resolve: func(now time.Time, _ []string) Range {
			return Range{Start: now.Add(-5 * time.Minute), End: now}
		},
	},
	{
		pattern: regexp.MustCompile(`\b(?:last|past)\s+(\d+)\s+min(?:ute)?s?\b`),
		resolve: func(now time.Time, match []string) Range {
			n, _ := strconv.Atoi(match[1])
			return Range{Start: now.Add(-time.Duration(n) * time.Minute), End: now}
		},
	},
	{
		pattern: regexp.MustCompile(`\b(?:last|past)\s+(\d+)\s+hours?\b`),
		resolve: func(now time.Time, match []string) Range {
			n, _ := strconv.Atoi(match[1])
			return Range{Start: now.Add(-time.Duration(n) * time.Hour), End: now}
		},
	},
	{
		pattern: regexp.MustCompile(`\b(?:last|past)\s+hour\b`),
		resolve: func(now time.Time, _ []string) Range {
			return Range{Start: now.Add(-time.Hour), End: now}
		},
	},
	{
		pattern: regexp.MustCompile(`\b(?:last|past)\s+(\d+)\s+days?\b`),
		resolve: func(now time.Time, match []string) Range {
			n, _ := strconv.Atoi(match[1])
			return Range{Start: startOfDay(now).AddDate(0, 0, -n), End: now}
		},
	},
	{
		pattern: regexp.MustCompile(`\byesterday\b`),
		resolve: func(now time.Time, _ []string) Range {
			start := startOfDay(now).AddDate(0, 0, -1)
			return Range{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Second)}
		},
	},
	{
		pattern: regexp.MustCompile(`\btoday\b`),
		resolve: func(now time.Time, _ []string) Range {
			return Range{Start: startOfDay(now), End: now}
		},
	},
	{
		pattern: regexp.MustCompile(`\brecently\b`),
		resolve: func(now time.Time, _ []string) Range {
			return Range{Start: now.Add(-15 * time.Minute), End: now}
		},
	},
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Parse resolves the first matching time expression and extracts keywords
// from the residual text. An unrecognized time expression is not an error:
// the range falls back to unbounded.
func Parse(raw string, now time.Time) (Range, []string) {
	text := strings.ToLower(strings.TrimSpace(raw))

	rng := Range{Unbounded: true}
	for _, rule := range timeRules {
		loc := rule.pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		match := make([]string, 0, len(loc)/2)
		for i := 0; i < len(loc); i += 2 {
			if loc[i] < 0 {
				match = append(match, "")
				continue
			}
			match = append(match, text[loc[i]:loc[i+1]])
		}
		rng = rule.resolve(now, match)
		text = text[:loc[0]] + " " + text[loc[1]:]
		break
	}

	return rng, extractKeywords(text)
}

var queryStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "me": true, "my": true,
	"was": true, "were": true, "is": true, "am": true, "do": true, "did": true,
	"doing": true, "what": true, "when": true, "show": true, "tell": true,
	"about": true, "on": true, "in": true, "at": true, "of": true, "to": true,
	"for": true, "and": true, "or": true, "with": true, "working": true,
	"happened": true, "have": true, "been": true, "you": true,
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9.\p{Han}_-]+`)

func extractKeywords(residual string) []string {
	var keywords []string
	for _, token := range tokenSplit.Split(residual, -1) {
		token = strings.Trim(token, ".-_")
		if len(token) < 2 || queryStopwords[token] {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}
