package store

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxTopApps        = 3
	maxMainActivities = 5
	maxTopKeywords    = 10
)

// aggregateRecords merges one full window into a single AggregatedRecord:
// top apps by frequency, top keywords, a handful of distinct activities and
// a rolled-up error summary.
func aggregateRecords(window []SummaryRecord) AggregatedRecord {
	appCounts := make(map[string]int)
	keywordCounts := make(map[string]int)
	var activities []string
	var errorMessages []string
	hasErrors := false

	for _, r := range window {
		if r.App != "" {
			appCounts[r.App]++
		}
		for _, kw := range r.Keywords {
			keywordCounts[kw]++
		}
		if r.HasIssue || r.Action == "issue" || r.Action == "error" {
			hasErrors = true
			if r.IssueSummary != "" {
				errorMessages = append(errorMessages, r.IssueSummary)
			} else {
				errorMessages = append(errorMessages, r.Summary)
			}
		}
		if len(activities) < maxMainActivities && !contains(activities, r.Summary) {
			activities = append(activities, r.Summary)
		}
	}

	topApps := topByCount(appCounts, maxTopApps)
	summary := buildWindowSummary(topApps, activities)

	agg := AggregatedRecord{
		StartTime:      window[0].Timestamp,
		EndTime:        window[len(window)-1].Timestamp,
		Summary:        summary,
		Apps:           topApps,
		MainActivities: activities,
		Keywords:       topByCount(keywordCounts, maxTopKeywords),
		RecordCount:    len(window),
		HasErrors:      hasErrors,
	}
	if hasErrors {
		agg.ErrorSummary = strings.Join(dedupe(errorMessages), "; ")
	}
	return agg
}

func buildWindowSummary(apps, activities []string) string {
	activity := "unknown activity"
	if len(activities) > 0 {
		activity = activities[0]
	}
	if len(apps) == 0 {
		return activity
	}
	return fmt.Sprintf("Used %s: %s", strings.Join(apps, ", "), activity)
}

func topByCount(counts map[string]int, limit int) []string {
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, entry{k, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, v := range list {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
