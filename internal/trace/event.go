// Package trace records the presentation pipeline's observable behavior:
// accepted and rejected mutations on the way in, effect applications and
// transition edges on the way out. A trace plus the rule table's hash is a
// complete determinism audit: replaying the recorded inputs through a
// fresh pipeline must reproduce the recorded outputs exactly.
package trace

import "context"

// Kind classifies a trace event.
type Kind string

const (
	// KindObserve: an element entered tracking.
	KindObserve Kind = "observe"
	// KindDrop: an element left tracking.
	KindDrop Kind = "drop"
	// KindSet: a flag mutation was accepted and changed effective state.
	KindSet Kind = "set"
	// KindReject: a raw update was dropped (unknown flag or bad value).
	KindReject Kind = "reject"
	// KindApply: a static effect was applied to the host UI.
	KindApply Kind = "apply"
	// KindRemove: a static effect was removed from the host UI.
	KindRemove Kind = "remove"
	// KindStart: a transition instance started.
	KindStart Kind = "start"
	// KindCancel: a transition instance was cancelled.
	KindCancel Kind = "cancel"
	// KindComplete: a transition instance completed naturally.
	KindComplete Kind = "complete"
)

// Event is one trace record. Which fields are meaningful depends on Kind;
// unused fields stay zero.
type Event struct {
	// Seq is the logical clock stamp. Strictly increasing within a trace.
	Seq  int64 `json:"seq"`
	Kind Kind  `json:"kind"`

	// Element is the element ID the event concerns.
	Element string `json:"element"`

	// Flag and Value describe mutations (set) and rejections (reject).
	// For rejections Value holds the raw attribute text as received.
	Flag  string `json:"flag,omitempty"`
	Value string `json:"value,omitempty"`

	// Property and Channel describe static effect events (apply, remove).
	Property string `json:"property,omitempty"`
	Channel  string `json:"channel,omitempty"`

	// Transition fields describe transition events (start, cancel,
	// complete). TransitionID is run-specific (token generator output) and
	// excluded from replay comparison; Transition is the stable name.
	Transition   string  `json:"transition,omitempty"`
	TransitionID string  `json:"transition_id,omitempty"`
	Progress     float64 `json:"progress,omitempty"`

	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`

	// TableHash is the content hash of the rule table in force.
	TableHash string `json:"table_hash,omitempty"`
}

// Recorder is the sink the bridge writes trace events to.
// Implemented by Store (SQLite) and Memory (in-process).
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Input reports whether the event is a pipeline input (something the host
// UI did) rather than a pipeline output. Inputs are what replay re-feeds.
func (e Event) Input() bool {
	switch e.Kind {
	case KindObserve, KindDrop, KindSet, KindReject, KindComplete:
		return true
	default:
		return false
	}
}
