package store

// Timestamp layouts used across the persisted layout. Records sort
// lexicographically by Timestamp within a day, so string comparison is
// enough for range filtering.
const (
	TimeLayout = "2006-01-02T15:04:05"
	DayLayout  = "2006-01-02"
)

// AggregationWindow is the number of consecutive raw records merged into one
// AggregatedRecord (about five minutes at the default capture cadence).
const AggregationWindow = 300

// SummaryRecord is one analyzed (non-skipped) capture. Immutable once
// written; only appended or purged, never mutated.
type SummaryRecord struct {
	Timestamp    string   `json:"timestamp"`
	Summary      string   `json:"summary"`
	App          string   `json:"app"`
	Action       string   `json:"action"`
	Keywords     []string `json:"keywords"`
	HasIssue     bool     `json:"has_issue"`
	IssueType    string   `json:"issue_type"`
	IssueSummary string   `json:"issue_summary"`
	Suggestion   string   `json:"suggestion"`
	Confidence   float64  `json:"confidence"`
	Detail       string   `json:"detail"`
	DetailRef    string   `json:"detail_ref"`
	Provider     string   `json:"provider,omitempty"`
}

// AggregatedRecord merges one full window of consecutive raw records and
// stands in for that window in long-range queries.
type AggregatedRecord struct {
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Summary        string   `json:"summary"`
	Apps           []string `json:"apps"`
	MainActivities []string `json:"main_activities"`
	Keywords       []string `json:"keywords"`
	RecordCount    int      `json:"record_count"`
	HasErrors      bool     `json:"has_errors"`
	ErrorSummary   string   `json:"error_summary,omitempty"`
}

// DaySummary is one self-contained day partition: the unit of storage
// granularity, independently loadable and independently evictable.
type DaySummary struct {
	Date       string             `json:"date"`
	Records    []SummaryRecord    `json:"records"`
	Aggregated []AggregatedRecord `json:"aggregated"`
	DayNote    string             `json:"day_summary,omitempty"`
}

// UnaggregatedStart returns the timestamp of the first raw record not yet
// covered by an aggregation window, or "" when every record is covered or
// the partition is empty.
func (d *DaySummary) UnaggregatedStart() string {
	covered := len(d.Aggregated) * AggregationWindow
	if covered >= len(d.Records) {
		return ""
	}
	return d.Records[covered].Timestamp
}
