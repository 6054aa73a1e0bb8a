package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/veneer-dev/veneer/internal/trace"
)

// TraceSnapshot captures the complete trace of a scenario execution for
// golden comparison. The table hash is left out: it changes whenever the
// fixture table is edited, and the trace body already pins the behavior.
type TraceSnapshot struct {
	Scenario string          `json:"scenario"`
	Trace    []snapshotEvent `json:"trace"`
}

// snapshotEvent mirrors trace.Event minus the table hash. Transition IDs
// and progress stay in: the harness clocks make both deterministic.
type snapshotEvent struct {
	Seq          int64   `json:"seq"`
	Kind         string  `json:"kind"`
	Element      string  `json:"element"`
	Flag         string  `json:"flag,omitempty"`
	Value        string  `json:"value,omitempty"`
	Property     string  `json:"property,omitempty"`
	Channel      string  `json:"channel,omitempty"`
	Transition   string  `json:"transition,omitempty"`
	TransitionID string  `json:"transition_id,omitempty"`
	Progress     float64 `json:"progress,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

func newSnapshot(name string, events []trace.Event) TraceSnapshot {
	snap := TraceSnapshot{Scenario: name, Trace: make([]snapshotEvent, len(events))}
	for i, ev := range events {
		snap.Trace[i] = snapshotEvent{
			Seq:          ev.Seq,
			Kind:         string(ev.Kind),
			Element:      ev.Element,
			Flag:         ev.Flag,
			Value:        ev.Value,
			Property:     ev.Property,
			Channel:      ev.Channel,
			Transition:   ev.Transition,
			TransitionID: ev.TransitionID,
			Progress:     ev.Progress,
			Reason:       ev.Reason,
		}
	}
	return snap
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// Useful when a scenario has already run and only the comparison is needed.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := newSnapshot(scenarioName, result.Trace)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, append(data, '\n'))

	return nil
}
