package bus

import "time"

// AlertKind discriminates what a subscriber is being told about.
type AlertKind string

const (
	// KindIssue is an on-screen problem spotted by the vision model.
	KindIssue AlertKind = "issue"
	// KindModelError is a failure of the model backend itself.
	KindModelError AlertKind = "model_error"
)

// Alert is the event published after an analysis surfaces an error signal.
// Delivery is fire-and-forget: the capture tick never waits on subscribers.
type Alert struct {
	Timestamp  time.Time
	Kind       AlertKind
	ErrorType  string
	Message    string
	Suggestion string
	Source     string
}
