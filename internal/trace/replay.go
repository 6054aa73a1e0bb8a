package trace

import (
	"fmt"
)

// Replay verification compares a recorded trace against the trace produced
// by re-feeding the recorded inputs through a fresh pipeline. The caller
// owns the re-feeding (it needs a bridge wired to a fresh store); this file
// owns input extraction and the comparison.

// Inputs filters a trace down to the events replay must re-feed, in order.
func Inputs(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Input() {
			out = append(out, ev)
		}
	}
	return out
}

// DivergenceError reports the first point where a replayed trace stopped
// matching the recorded one.
type DivergenceError struct {
	Index    int
	Recorded *Event // nil when the replay produced extra events
	Replayed *Event // nil when the replay produced too few events
}

func (e *DivergenceError) Error() string {
	switch {
	case e.Recorded == nil:
		return fmt.Sprintf("trace diverged at event %d: replay produced extra event %s", e.Index, describe(*e.Replayed))
	case e.Replayed == nil:
		return fmt.Sprintf("trace diverged at event %d: replay missing event %s", e.Index, describe(*e.Recorded))
	default:
		return fmt.Sprintf("trace diverged at event %d: recorded %s, replayed %s",
			e.Index, describe(*e.Recorded), describe(*e.Replayed))
	}
}

// HashMismatchError reports a replay attempted against a different rule
// table than the trace was recorded with. Replaying across table versions
// is meaningless: rules, priorities, and channels may all differ.
type HashMismatchError struct {
	Recorded string
	Current  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("table hash mismatch: trace recorded against %s, current table is %s",
		e.Recorded, e.Current)
}

// TableHashOf returns the table hash a trace was recorded against, taken
// from the first event that carries one. Empty when none do.
func TableHashOf(events []Event) string {
	for _, ev := range events {
		if ev.TableHash != "" {
			return ev.TableHash
		}
	}
	return ""
}

// Verify compares a recorded trace with a replayed one event by event.
// Seq, TransitionID, and Progress are excluded: seq numbering restarts per
// run, transition IDs come from the run's token generator, and resume
// progress tracks the frame clock, which a replay cannot reproduce.
// Everything else must match exactly, including order.
func Verify(recorded, replayed []Event) error {
	n := len(recorded)
	if len(replayed) > n {
		n = len(replayed)
	}

	for i := 0; i < n; i++ {
		switch {
		case i >= len(recorded):
			ev := replayed[i]
			return &DivergenceError{Index: i, Replayed: &ev}
		case i >= len(replayed):
			ev := recorded[i]
			return &DivergenceError{Index: i, Recorded: &ev}
		}

		if !equivalent(recorded[i], replayed[i]) {
			rec, rep := recorded[i], replayed[i]
			return &DivergenceError{Index: i, Recorded: &rec, Replayed: &rep}
		}
	}
	return nil
}

// equivalent compares two events on their replay-stable fields.
func equivalent(a, b Event) bool {
	return a.Kind == b.Kind &&
		a.Element == b.Element &&
		a.Flag == b.Flag &&
		a.Value == b.Value &&
		a.Property == b.Property &&
		a.Channel == b.Channel &&
		a.Transition == b.Transition &&
		a.Reason == b.Reason
}

func describe(ev Event) string {
	switch ev.Kind {
	case KindSet, KindReject:
		return fmt.Sprintf("%s(%s %s=%q)", ev.Kind, ev.Element, ev.Flag, ev.Value)
	case KindApply, KindRemove:
		return fmt.Sprintf("%s(%s %s=%q)", ev.Kind, ev.Element, ev.Property, ev.Value)
	case KindStart, KindCancel, KindComplete:
		return fmt.Sprintf("%s(%s %s on %s)", ev.Kind, ev.Element, ev.Transition, ev.Channel)
	default:
		return fmt.Sprintf("%s(%s)", ev.Kind, ev.Element)
	}
}
