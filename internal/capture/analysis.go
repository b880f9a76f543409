package capture

import (
	"encoding/json"
	"strings"
)

const analysisPrompt = `You are a screen capture analyzer. Output exactly one parseable JSON object with no explanation, markdown or code fences.

Required fields:
{
  "summary": "one sentence describing what the user is doing, with which tool, on what content",
  "detail": "concrete description of the visible screen: main windows, visible text, buttons, inputs, outputs, error messages",
  "app": "main application or window name, or Unknown",
  "has_issue": true or false,
  "issue_type": "2-6 word problem class, empty when has_issue is false",
  "issue_summary": "the specific error text or blocking condition, empty when has_issue is false",
  "suggestion": "concrete remediation steps, empty when has_issue is false",
  "confidence": 0.0-1.0
}

Rules:
- has_issue is true only when an explicit error, failure or blocking message is visible
- issue_summary must quote or closely paraphrase the visible error text
- detail describes only what is visible, never guesses hidden content

Recent activity (for reference only, may be incomplete):
%s
`

// Analysis is the normalized output of one model analysis.
type Analysis struct {
	Summary      string
	App          string
	Detail       string
	HasIssue     bool
	IssueType    string
	IssueSummary string
	Suggestion   string
	Confidence   float64
}

// IssueMessage is the best available description of the detected problem.
func (a Analysis) IssueMessage() string {
	if a.IssueSummary != "" {
		return a.IssueSummary
	}
	return a.Summary
}

// ParseAnalysis normalizes raw model output. It accepts plain JSON, fenced
// or brace-embedded JSON and a handful of field aliases; anything else
// degrades to a heuristic reading of the raw text.
func ParseAnalysis(text string) Analysis {
	obj, ok := extractJSONObject(text)
	if !ok {
		return heuristicAnalysis(text)
	}

	a := Analysis{
		Summary:      stringField(obj, "summary"),
		App:          stringField(obj, "app"),
		Detail:       stringField(obj, "detail", "detail_description", "image_detail", "image_description", "screen_detail"),
		IssueType:    stringField(obj, "issue_type", "error_type"),
		IssueSummary: stringField(obj, "issue_summary", "error_message"),
		Suggestion:   stringField(obj, "suggestion"),
	}
	if a.App == "" {
		a.App = "Unknown"
	}

	a.HasIssue = boolField(obj, "has_issue", "has_error")
	// A model that fills issue fields but forgets the flag still means yes.
	if !a.HasIssue && (a.IssueType != "" || a.IssueSummary != "" || a.Suggestion != "") {
		a.HasIssue = true
	}
	a.Confidence = parseConfidence(obj["confidence"], a.HasIssue)
	return a
}

var issueMarkers = []string{
	"error", "failed", "failure", "exception", "cannot", "not found",
	"unable to", "stuck", "not responding", "crashed", "denied",
}

func heuristicAnalysis(text string) Analysis {
	lower := strings.ToLower(text)
	hasIssue := false
	for _, marker := range issueMarkers {
		if strings.Contains(lower, marker) {
			hasIssue = true
			break
		}
	}

	a := Analysis{
		Summary:    firstLine(text),
		App:        "Unknown",
		Detail:     text,
		HasIssue:   hasIssue,
		Confidence: 0.2,
	}
	if hasIssue {
		a.IssueType = "detected"
		a.IssueSummary = text
		a.Confidence = 0.4
	}
	return a
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) (map[string]any, bool) {
	candidates := []string{text}
	if inner, ok := fencedBody(text); ok {
		candidates = append(candidates, inner)
	}
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, candidate := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

func fencedBody(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	rest = strings.TrimPrefix(rest, "json")
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func boolField(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		if v, ok := obj[key].(bool); ok {
			return v
		}
	}
	return false
}

func parseConfidence(v any, hasIssue bool) float64 {
	fallback := 0.2
	if hasIssue {
		fallback = 0.5
	}

	switch val := v.(type) {
	case float64:
		return clamp01(val)
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "high":
			return 0.9
		case "medium":
			return 0.6
		case "low":
			return 0.3
		}
	}
	return fallback
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var keywordExtensions = []string{
	".go", ".rs", ".ts", ".js", ".py", ".vue", ".tsx", ".jsx", ".md", ".json",
}

var keywordActions = []string{
	"editing", "browsing", "searching", "debugging", "running", "writing",
	"reading", "reviewing", "error", "failed", "stuck", "not responding",
}

// ExtractKeywords tags a summary with a small closed vocabulary used by
// keyword search and aggregation rollups.
func ExtractKeywords(summary string) []string {
	lower := strings.ToLower(summary)
	var keywords []string
	for _, ext := range keywordExtensions {
		if strings.Contains(lower, ext) {
			keywords = append(keywords, ext)
		}
	}
	for _, action := range keywordActions {
		if strings.Contains(lower, action) {
			keywords = append(keywords, action)
		}
	}
	return keywords
}
