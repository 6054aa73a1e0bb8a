package ir

import "time"

// Trigger selects when a transition effect fires relative to its owning
// rule's match state.
type Trigger int

const (
	// TriggerEnter fires when the owning rule starts matching.
	TriggerEnter Trigger = iota + 1
	// TriggerExit fires when the owning rule stops matching.
	TriggerExit
	// TriggerToggle fires on both edges.
	TriggerToggle
)

// String returns the trigger name used in rule-table sources.
func (t Trigger) String() string {
	switch t {
	case TriggerEnter:
		return "enter"
	case TriggerExit:
		return "exit"
	case TriggerToggle:
		return "toggle"
	default:
		return "invalid"
	}
}

// ParseTrigger parses a trigger name. Returns false for unknown names.
func ParseTrigger(s string) (Trigger, bool) {
	switch s {
	case "enter":
		return TriggerEnter, true
	case "exit":
		return TriggerExit, true
	case "toggle":
		return TriggerToggle, true
	default:
		return 0, false
	}
}

// Effect is a sealed interface over the two presentation instruction kinds.
// Only StaticEffect and TransitionEffect implement it. Effects carry no
// mutable state; in-flight animation state lives on engine.RunningTransition.
//
// Channel is the conflict domain: within one resolved effect set, at most
// one effect may win per channel, and the scheduler allows at most one
// running transition per (element, channel).
type Effect interface {
	effect() // Sealed
	Channel() string
}

// StaticEffect is a property/value pair applied for as long as its owning
// rule matches.
type StaticEffect struct {
	// Property is the presentation property to set (host-defined, e.g. a
	// CSS custom property or class name).
	Property string `json:"property"`
	Value    string `json:"value"`

	// Chan overrides the conflict channel; empty means the property itself.
	Chan string `json:"channel,omitempty"`
}

func (StaticEffect) effect() {}

// Channel returns the conflict channel (Chan, or Property when unset).
func (e StaticEffect) Channel() string {
	if e.Chan != "" {
		return e.Chan
	}
	return e.Property
}

// TransitionEffect is a named animation with duration, easing, and a
// trigger edge. The engine schedules it; the host UI executes it.
type TransitionEffect struct {
	// Name identifies the animation to the host (e.g. "pulse", "fade").
	Name string `json:"name"`

	// Chan overrides the conflict channel; empty means the name itself.
	Chan string `json:"channel,omitempty"`

	Duration time.Duration `json:"duration"`
	Easing   string        `json:"easing,omitempty"`
	Trigger  Trigger       `json:"trigger"`
}

func (TransitionEffect) effect() {}

// Channel returns the conflict channel (Chan, or Name when unset).
func (e TransitionEffect) Channel() string {
	if e.Chan != "" {
		return e.Chan
	}
	return e.Name
}
