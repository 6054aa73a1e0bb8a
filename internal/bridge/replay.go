package bridge

import (
	"fmt"

	"github.com/veneer-dev/veneer/internal/engine"
	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/table"
	"github.com/veneer-dev/veneer/internal/trace"
)

// NopApplier discards all outbound calls. Used by replay, where the trace
// recorder is the only observer that matters.
type NopApplier struct{}

func (NopApplier) ApplyEffect(string, ir.StaticEffect)                 {}
func (NopApplier) RemoveEffect(string, ir.StaticEffect)                {}
func (NopApplier) StartTransition(string, engine.TransitionDescriptor) {}
func (NopApplier) CancelTransition(string, string)                     {}

// Replay re-feeds a recorded trace's inputs through a fresh pipeline over
// the given table and verifies the emitted trace matches the recording.
// Returns *trace.HashMismatchError when the table differs from the one the
// trace was recorded with, or *trace.DivergenceError on the first
// mismatched event.
func Replay(tbl *table.Table, recorded []trace.Event) error {
	if len(recorded) == 0 {
		return nil
	}
	if hash := trace.TableHashOf(recorded); hash != "" && hash != tbl.Hash() {
		return &trace.HashMismatchError{Recorded: hash, Current: tbl.Hash()}
	}

	// The first event of every trace is the root element's registration;
	// honor the recorded root ID so root-scoped rules resolve identically.
	root := DefaultRootElement
	if len(recorded) > 0 && recorded[0].Kind == trace.KindObserve {
		root = recorded[0].Element
	}

	mem := trace.NewMemory()
	b := New(tbl, NopApplier{}, WithRecorder(mem), WithRootElement(root))

	for _, ev := range trace.Inputs(recorded) {
		var err error
		switch ev.Kind {
		case trace.KindObserve:
			err = b.Dispatch(Event{Type: EventObserve, Element: ev.Element})
		case trace.KindSet, trace.KindReject:
			// Rejected raw values are re-fed too: the fresh pipeline must
			// reject them the same way.
			err = b.Dispatch(Event{Type: EventAttribute, Element: ev.Element, Flag: ev.Flag, Raw: ev.Value})
		case trace.KindDrop:
			err = b.Dispatch(Event{Type: EventRemoval, Element: ev.Element})
		case trace.KindComplete:
			// The recorded transition ID belongs to the original run; the
			// channel identifies the equivalent transition in this one.
			err = b.Dispatch(Event{Type: EventChannelCompletion, Element: ev.Element, Channel: ev.Channel})
		}
		if err != nil {
			return fmt.Errorf("replay input seq %d: %w", ev.Seq, err)
		}
	}

	return trace.Verify(recorded, mem.Events())
}
