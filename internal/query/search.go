package query

import (
	"strings"
	"time"

	"github.com/retracehq/retrace/internal/store"
)

// Result is the material matched by one search: raw records, aggregated
// windows standing in for older spans, and the source label describing
// which retrieval path produced it.
type Result struct {
	Range      Range
	Keywords   []string
	Records    []store.SummaryRecord
	Aggregated []store.AggregatedRecord
	Source     string
}

// Engine runs smart search against the record store. Reads are safe to
// interleave with in-flight writes: partitions are replaced atomically.
type Engine struct {
	store *store.Store
}

func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Search parses the free-text query and retrieves matching records.
// Keyword queries scan raw records for full fidelity; pure time queries
// prefer aggregated windows for spans older than the most recent partial
// window and raw records for the recent tail.
func (e *Engine) Search(rawQuery string, now time.Time) (*Result, error) {
	rng, keywords := Parse(rawQuery, now)
	result := &Result{Range: rng, Keywords: keywords}

	days, err := e.daysInRange(rng, now)
	if err != nil {
		return nil, err
	}

	if len(keywords) > 0 {
		result.Source = "keyword search"
		for _, date := range days {
			records, err := e.store.Summaries(date)
			if err != nil {
				return nil, err
			}
			for _, r := range records {
				if inRange(rng, r.Timestamp) && matchesKeywords(r, keywords) {
					result.Records = append(result.Records, r)
				}
			}
		}
		return result, nil
	}

	// The source label describes the retrieval policy for the whole range,
	// chosen once: "raw records" when a bounded range sits entirely inside
	// today's most recent partial window (full fidelity at bounded volume),
	// "aggregated" otherwise.
	result.Source = "aggregated"
	today := now.Format(store.DayLayout)
	for _, date := range days {
		day, err := e.store.LoadDay(date)
		if err != nil {
			return nil, err
		}

		if len(days) == 1 && date == today && !rng.Unbounded {
			if tail := day.UnaggregatedStart(); tail != "" &&
				rng.Start.Format(store.TimeLayout) >= tail {
				result.Source = "raw records"
			}
		}

		for _, agg := range day.Aggregated {
			if aggInRange(rng, agg) {
				result.Aggregated = append(result.Aggregated, agg)
			}
		}
		// A day's unaggregated tail has nothing standing in for it, so it
		// stays raw; context truncation bounds the volume.
		covered := len(day.Aggregated) * store.AggregationWindow
		if covered > len(day.Records) {
			covered = len(day.Records)
		}
		for _, r := range day.Records[covered:] {
			if inRange(rng, r.Timestamp) {
				result.Records = append(result.Records, r)
			}
		}
	}

	return result, nil
}

func (e *Engine) daysInRange(rng Range, now time.Time) ([]string, error) {
	days, err := e.store.Days()
	if err != nil {
		return nil, err
	}
	if rng.Unbounded {
		return days, nil
	}

	startDay := rng.Start.Format(store.DayLayout)
	endDay := rng.End.Format(store.DayLayout)
	var out []string
	for _, date := range days {
		if date >= startDay && date <= endDay {
			out = append(out, date)
		}
	}
	return out, nil
}

func inRange(rng Range, timestamp string) bool {
	if rng.Unbounded {
		return true
	}
	return timestamp >= rng.Start.Format(store.TimeLayout) &&
		timestamp <= rng.End.Format(store.TimeLayout)
}

func aggInRange(rng Range, agg store.AggregatedRecord) bool {
	if rng.Unbounded {
		return true
	}
	// Keep any window overlapping the range.
	return agg.EndTime >= rng.Start.Format(store.TimeLayout) &&
		agg.StartTime <= rng.End.Format(store.TimeLayout)
}

func matchesKeywords(r store.SummaryRecord, keywords []string) bool {
	text := strings.ToLower(strings.Join([]string{
		r.Summary, r.App, r.Detail, strings.Join(r.Keywords, " "),
	}, " "))
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
