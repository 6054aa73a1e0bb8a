package harness

import (
	"fmt"
	"sync"

	"github.com/veneer-dev/veneer/internal/engine"
	"github.com/veneer-dev/veneer/internal/ir"
)

// RecordingApplier is a fake host adapter. It keeps the set of currently
// applied static effects per element, the way a real adapter would keep
// attributes on DOM nodes, plus an ordered log of every outbound call.
type RecordingApplier struct {
	mu     sync.Mutex
	active map[string]map[string]string // element -> property -> value
	calls  []string
}

// NewRecordingApplier creates an empty recording applier.
func NewRecordingApplier() *RecordingApplier {
	return &RecordingApplier{
		active: make(map[string]map[string]string),
	}
}

func (a *RecordingApplier) ApplyEffect(elementID string, eff ir.StaticEffect) {
	a.mu.Lock()
	defer a.mu.Unlock()
	props, ok := a.active[elementID]
	if !ok {
		props = make(map[string]string)
		a.active[elementID] = props
	}
	props[eff.Property] = eff.Value
	a.calls = append(a.calls, fmt.Sprintf("apply %s %s=%s", elementID, eff.Property, eff.Value))
}

func (a *RecordingApplier) RemoveEffect(elementID string, eff ir.StaticEffect) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active[elementID], eff.Property)
	a.calls = append(a.calls, fmt.Sprintf("remove %s %s", elementID, eff.Property))
}

func (a *RecordingApplier) StartTransition(elementID string, desc engine.TransitionDescriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("start %s %s %s", elementID, desc.Name, desc.ID))
}

func (a *RecordingApplier) CancelTransition(elementID string, transitionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("cancel %s %s", elementID, transitionID))
}

// Active returns the currently applied value of a property on an element.
// The second return reports whether the property is applied at all.
func (a *RecordingApplier) Active(elementID, property string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.active[elementID][property]
	return v, ok
}

// ActiveCount returns how many static effects an element currently carries.
func (a *RecordingApplier) ActiveCount(elementID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active[elementID])
}

// Calls returns a copy of the ordered outbound call log.
func (a *RecordingApplier) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}
