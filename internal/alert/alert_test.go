package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/retracehq/retrace/internal/bus"
	"github.com/retracehq/retrace/internal/vision"
)

type sink struct {
	mu     sync.Mutex
	alerts []bus.Alert
}

func (s *sink) add(a bus.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *sink) last() bus.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[len(s.alerts)-1]
}

func newTestInspector(t *testing.T) (*Inspector, *sink) {
	t.Helper()
	b := bus.NewAlertBus(10)
	collected := &sink{}
	b.Subscribe("test", collected.add)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Dispatch(ctx)

	return NewInspector(b), collected
}

func settle() { time.Sleep(20 * time.Millisecond) }

func finding(issueType, message string) Finding {
	return Finding{
		App:          "Terminal",
		Summary:      "Build failed",
		IssueType:    issueType,
		IssueSummary: message,
		Confidence:   0.9,
	}
}

func TestInspectorEmitsAndDedupesLastIssue(t *testing.T) {
	insp, collected := newTestInspector(t)
	now := time.Now()
	f := finding("build failure", "exit status 1")

	if !insp.EvaluateIssue(f, now, time.Minute, 0.6) {
		t.Fatal("fresh issue should pass")
	}
	insp.EmitIssue(f, now)

	// The same issue still on screen, well past any cooldown.
	if insp.EvaluateIssue(f, now.Add(time.Hour), time.Minute, 0.6) {
		t.Fatal("unchanged last issue should not re-alert")
	}

	settle()
	if collected.count() != 1 {
		t.Fatalf("alerts = %d", collected.count())
	}
	a := collected.last()
	if a.Kind != bus.KindIssue || a.Message != "exit status 1" || a.Source != "Terminal" {
		t.Fatalf("alert = %+v", a)
	}
}

func TestInspectorCooldownWindow(t *testing.T) {
	insp, _ := newTestInspector(t)
	now := time.Now()
	a := finding("build failure", "exit status 1")
	b := finding("test failure", "3 tests failed")

	insp.EmitIssue(a, now)
	insp.EmitIssue(b, now.Add(time.Second))

	// a is no longer the last issue, but it is inside its cooldown window.
	if insp.EvaluateIssue(a, now.Add(30*time.Second), time.Minute, 0.6) {
		t.Fatal("issue inside cooldown should be suppressed")
	}
	if !insp.EvaluateIssue(a, now.Add(2*time.Minute), time.Minute, 0.6) {
		t.Fatal("issue past cooldown should alert again")
	}
}

func TestInspectorCooldownFloor(t *testing.T) {
	insp, _ := newTestInspector(t)
	now := time.Now()
	a := finding("build failure", "exit status 1")
	b := finding("test failure", "3 tests failed")

	insp.EmitIssue(a, now)
	insp.EmitIssue(b, now.Add(time.Second))

	// Zero cooldown is clamped to the floor, not disabled.
	if insp.EvaluateIssue(a, now.Add(2*time.Second), 0, 0.6) {
		t.Fatal("cooldown floor should still suppress")
	}
	if !insp.EvaluateIssue(a, now.Add(10*time.Second), 0, 0.6) {
		t.Fatal("past the floor the issue should pass")
	}
}

func TestInspectorNormalizesVolatileText(t *testing.T) {
	insp, _ := newTestInspector(t)
	now := time.Now()

	insp.EmitIssue(finding("oom", "process 4312 killed after 93s"), now)
	// Same problem, different numbers.
	if insp.EvaluateIssue(finding("oom", "process 9987 killed after 12s"), now.Add(time.Minute), time.Hour, 0.6) {
		t.Fatal("digit-only variation should collide to the same key")
	}
}

func TestInspectorConfidenceGate(t *testing.T) {
	insp, _ := newTestInspector(t)
	f := finding("build failure", "exit status 1")
	f.Confidence = 0.4
	if insp.EvaluateIssue(f, time.Now(), time.Minute, 0.6) {
		t.Fatal("low-confidence finding should be dropped")
	}
}

func TestInspectorSuppressesSelfView(t *testing.T) {
	insp, _ := newTestInspector(t)
	f := Finding{
		App:          "Retrace",
		Summary:      "Viewing the alert history panel",
		Detail:       "a list of past alerts",
		IssueType:    "error",
		IssueSummary: "error text visible in history",
		Confidence:   0.9,
	}
	if insp.EvaluateIssue(f, time.Now(), time.Minute, 0.6) {
		t.Fatal("own alert history should not trigger alerts")
	}
}

func TestInspectorClearAllowsRepeat(t *testing.T) {
	insp, _ := newTestInspector(t)
	now := time.Now()
	f := finding("build failure", "exit status 1")

	insp.EmitIssue(f, now)
	insp.Clear()
	if !insp.EvaluateIssue(f, now.Add(2*time.Minute), time.Minute, 0.6) {
		t.Fatal("Clear should drop the duplicate key")
	}
}

func TestInspectorModelError(t *testing.T) {
	insp, collected := newTestInspector(t)
	now := time.Now()
	err := &vision.Error{Kind: vision.KindRateLimit, Status: 429}

	insp.EmitModelError(err, "capture", now, time.Minute)
	insp.EmitModelError(err, "capture", now.Add(10*time.Second), time.Minute)
	insp.EmitModelError(err, "capture", now.Add(2*time.Minute), time.Minute)

	settle()
	if collected.count() != 2 {
		t.Fatalf("alerts = %d, want 2 (second call inside cooldown)", collected.count())
	}
	a := collected.last()
	if a.Kind != bus.KindModelError || a.ErrorType != "rate_limit" {
		t.Fatalf("alert = %+v", a)
	}
	if a.Message == "" || a.Suggestion == "" {
		t.Fatal("model error alert should carry message and hint")
	}
}

func TestInspectorModelErrorPlain(t *testing.T) {
	insp, collected := newTestInspector(t)

	insp.EmitModelError(errors.New("boom"), "capture", time.Now(), time.Minute)

	settle()
	if collected.count() != 1 {
		t.Fatalf("alerts = %d", collected.count())
	}
	a := collected.last()
	if a.ErrorType != "unknown" || a.Message != "boom" {
		t.Fatalf("alert = %+v", a)
	}
}
