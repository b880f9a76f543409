// Package alert filters analysis findings and model failures into the
// small stream of events actually worth interrupting someone for.
package alert

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/retracehq/retrace/internal/bus"
	"github.com/retracehq/retrace/internal/vision"
)

// minCooldown is the floor applied to the configured alert cooldown so a
// misconfigured zero never turns the pipeline into a firehose.
const minCooldown = 5 * time.Second

// Finding is the issue-relevant slice of one analysis result.
type Finding struct {
	App          string
	Summary      string
	Detail       string
	IssueType    string
	IssueSummary string
	Suggestion   string
	Confidence   float64
}

// Inspector decides which findings become alerts. It keeps a per-key
// cooldown window and remembers the last emitted issue so an unchanged
// problem that stays on screen is reported once, not every tick.
type Inspector struct {
	mu       sync.Mutex
	bus      *bus.AlertBus
	lastSent map[string]time.Time
	lastKey  string
}

func NewInspector(b *bus.AlertBus) *Inspector {
	return &Inspector{bus: b, lastSent: make(map[string]time.Time)}
}

// EvaluateIssue reports whether a finding clears the confidence gate, the
// self-view suppression, the duplicate check and the cooldown window. It
// does not publish; call EmitIssue once any missing pieces (for example a
// generated suggestion) are filled in.
func (i *Inspector) EvaluateIssue(f Finding, now time.Time, cooldown time.Duration, minConfidence float64) bool {
	if f.Confidence < minConfidence {
		return false
	}
	if selfReferential(f) {
		return false
	}
	if cooldown < minCooldown {
		cooldown = minCooldown
	}

	key := issueKey(f)

	i.mu.Lock()
	defer i.mu.Unlock()
	if key == i.lastKey {
		return false
	}
	if sent, ok := i.lastSent[key]; ok && now.Sub(sent) < cooldown {
		return false
	}
	return true
}

// EmitIssue publishes the finding and marks its key as sent.
func (i *Inspector) EmitIssue(f Finding, now time.Time) {
	key := issueKey(f)

	i.mu.Lock()
	i.lastSent[key] = now
	i.lastKey = key
	i.mu.Unlock()

	i.bus.Publish(bus.Alert{
		Timestamp:  now,
		Kind:       bus.KindIssue,
		ErrorType:  f.IssueType,
		Message:    issueMessage(f),
		Suggestion: f.Suggestion,
		Source:     f.App,
	})
}

// EmitModelError publishes a backend failure, subject to the same cooldown
// keyed by error kind so a flapping endpoint produces one alert per window.
func (i *Inspector) EmitModelError(err error, source string, now time.Time, cooldown time.Duration) {
	var ve *vision.Error
	kind, message, hint := "unknown", err.Error(), ""
	if errors.As(err, &ve) {
		kind, message, hint = string(ve.Kind), ve.Message(), ve.Hint()
	}
	if cooldown < minCooldown {
		cooldown = minCooldown
	}

	key := "model:" + kind

	i.mu.Lock()
	if sent, ok := i.lastSent[key]; ok && now.Sub(sent) < cooldown {
		i.mu.Unlock()
		return
	}
	i.lastSent[key] = now
	i.mu.Unlock()

	i.bus.Publish(bus.Alert{
		Timestamp:  now,
		Kind:       bus.KindModelError,
		ErrorType:  kind,
		Message:    message,
		Suggestion: hint,
		Source:     source,
	})
}

// Clear forgets the duplicate key, letting the same issue alert again
// immediately. Used when capture restarts.
func (i *Inspector) Clear() {
	i.mu.Lock()
	i.lastKey = ""
	i.mu.Unlock()
}

func issueMessage(f Finding) string {
	if f.IssueSummary != "" {
		return f.IssueSummary
	}
	return f.Summary
}

var digitsRE = regexp.MustCompile(`\d+`)
var spacesRE = regexp.MustCompile(`\s+`)

// issueKey normalizes the issue text so the same problem with varying
// counters or timestamps still collides to one key.
func issueKey(f Finding) string {
	text := strings.ToLower(f.IssueType + "|" + issueMessage(f))
	text = digitsRE.ReplaceAllString(text, "#")
	return spacesRE.ReplaceAllString(text, " ")
}

// selfViewMarkers are window names of this program's own surfaces; an
// "issue" visible inside our own alert history is feedback, not news.
var selfViewMarkers = []string{"history", "chat", "alert", "settings", "timeline"}

func selfReferential(f Finding) bool {
	if !strings.Contains(strings.ToLower(f.App), "retrace") {
		return false
	}
	combined := strings.ToLower(f.Summary + " " + f.Detail)
	for _, marker := range selfViewMarkers {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}
