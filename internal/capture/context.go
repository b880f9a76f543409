package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/retracehq/retrace/internal/store"
)

const recentWindow = 3 * time.Minute

// buildRecentContext renders the last few minutes of today's records as a
// short reference block for the analysis prompt. The newest few records get
// their detail text included; older ones are summaries only.
func buildRecentContext(st *store.Store, now time.Time, summaryLimit, detailLimit int) string {
	records, err := st.Summaries(now.Format(store.DayLayout))
	if err != nil || len(records) == 0 {
		return "(none)"
	}

	cutoff := now.Add(-recentWindow).Format(store.TimeLayout)
	var recent []store.SummaryRecord
	for _, r := range records {
		if r.Timestamp >= cutoff {
			recent = append(recent, r)
		}
	}
	if len(recent) > summaryLimit {
		recent = recent[len(recent)-summaryLimit:]
	}
	if len(recent) == 0 {
		return "(none)"
	}

	detailFrom := len(recent) - detailLimit
	var b strings.Builder
	for i, r := range recent {
		fmt.Fprintf(&b, "- [%s] %s\n", clockOf(r.Timestamp), r.Summary)
		if i >= detailFrom && r.Detail != "" {
			fmt.Fprintf(&b, "  detail: %s\n", strings.ReplaceAll(r.Detail, "\n", " "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func clockOf(timestamp string) string {
	if t, err := time.Parse(store.TimeLayout, timestamp); err == nil {
		return t.Format("15:04:05")
	}
	return timestamp
}
