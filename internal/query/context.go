package query

import (
	"strings"
)

const elisionMarker = "...(earlier records omitted)\n"

// BuildContext renders a search result as bounded context text for a model
// call or a history view. Truncation keeps the most recent entries: lines
// are admitted newest-first against the budget, then emitted in
// chronological order with an elision marker where the cut happened.
func BuildContext(result *Result, maxChars int, includeDetail bool) string {
	if len(result.Records) == 0 && len(result.Aggregated) == 0 {
		return "No matching activity records."
	}

	budget := maxChars

	var recordLines []string
	for _, r := range result.Records {
		line := "- [" + clockTime(r.Timestamp) + "] " + r.Summary + "\n"
		if includeDetail && r.Detail != "" {
			line += "  detail: " + strings.ReplaceAll(r.Detail, "\n", " ") + "\n"
		}
		recordLines = append(recordLines, line)
	}
	keptRecords, recordsElided := takeNewest(recordLines, &budget)

	var aggLines []string
	for _, agg := range result.Aggregated {
		line := "- [" + clockTime(agg.StartTime) + " ~ " + clockTime(agg.EndTime) + "] " + agg.Summary + "\n"
		if agg.HasErrors && agg.ErrorSummary != "" {
			line += "  errors: " + agg.ErrorSummary + "\n"
		}
		aggLines = append(aggLines, line)
	}
	keptAggs, aggsElided := takeNewest(aggLines, &budget)

	var out strings.Builder
	if len(keptAggs) > 0 {
		out.WriteString("## Activity overview\n\n")
		if aggsElided {
			out.WriteString(elisionMarker)
		}
		for _, line := range keptAggs {
			out.WriteString(line)
		}
		out.WriteString("\n")
	}
	if len(keptRecords) > 0 {
		out.WriteString("## Detailed records\n\n")
		if recordsElided {
			out.WriteString(elisionMarker)
		}
		for _, line := range keptRecords {
			out.WriteString(line)
		}
	}

	text := out.String()
	if text == "" {
		return elisionMarker
	}
	return text
}

// takeNewest admits lines from the end of the slice while budget remains,
// returning them in original order and whether anything was dropped.
func takeNewest(lines []string, budget *int) ([]string, bool) {
	var kept []string
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > *budget {
			return kept, true
		}
		*budget -= len(lines[i])
		kept = append([]string{lines[i]}, kept...)
	}
	return kept, false
}

// clockTime extracts HH:MM:SS from a store timestamp.
func clockTime(timestamp string) string {
	if len(timestamp) >= 19 {
		return timestamp[11:19]
	}
	return timestamp
}
