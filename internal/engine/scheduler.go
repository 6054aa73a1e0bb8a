package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/state"
)

// TransitionResult tells a completion callback how a transition ended.
type TransitionResult int

const (
	// ResultCompleted: the host UI reported natural completion.
	ResultCompleted TransitionResult = iota + 1
	// ResultCancelled: a newer conflicting change superseded it.
	ResultCancelled
)

// String returns the result name used in traces.
func (r TransitionResult) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

// TransitionDescriptor is the scheduler's instruction to the host UI to
// start one animation.
type TransitionDescriptor struct {
	// ID uniquely identifies this instance; the host reports completion
	// against it.
	ID string

	Name     string
	Channel  string
	Duration time.Duration
	Easing   string

	// Edge is the trigger edge that fired: TriggerEnter when the owning
	// rule started matching, TriggerExit when it stopped.
	Edge ir.Trigger

	// StartFrom is the fractional progress (0..1) of the transition this
	// one replaced on the same channel, so an interrupted fade resumes
	// from its in-flight visual state instead of snapping. Zero for a
	// fresh start.
	StartFrom float64
}

// Applier is the outbound half of the Observer Bridge: the only interface
// through which resolved presentation reaches the host UI tree.
type Applier interface {
	ApplyEffect(elementID string, eff ir.StaticEffect)
	RemoveEffect(elementID string, eff ir.StaticEffect)
	StartTransition(elementID string, desc TransitionDescriptor)
	CancelTransition(elementID string, transitionID string)
}

// CompletionFunc observes transition outcomes. Called synchronously from
// Apply/CancelAll (with ResultCancelled) and from OnTransitionComplete
// (with ResultCompleted). Must not call back into the Scheduler.
type CompletionFunc func(elementID string, desc TransitionDescriptor, result TransitionResult)

// RunningTransition is one in-flight animation instance. Owned by the
// Scheduler from start until natural completion or cancellation; at most
// one exists per (element, channel).
type RunningTransition struct {
	ID        string
	Desc      TransitionDescriptor
	StartedAt time.Duration
}

// ProgressAt returns fractional progress (clamped to 0..1) at the given
// frame-clock instant, accounting for the resume point it started from.
func (rt *RunningTransition) ProgressAt(now time.Duration) float64 {
	if rt.Desc.Duration <= 0 {
		return 1
	}
	p := rt.Desc.StartFrom + float64(now-rt.StartedAt)/float64(rt.Desc.Duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Scheduler turns diffs between successive resolved effect sets into safe
// animation execution.
//
// INVARIANTS:
//   - at most one RunningTransition per (element, channel); a newer
//     transition on a busy channel cancels and replaces the prior one,
//     never overlaps it
//   - cancellation is synchronous: the superseded transition's resources
//     are released and its callback fired (Cancelled) before the call
//     that triggered it returns
//   - Apply never blocks on animation progress; completion arrives later
//     through OnTransitionComplete
type Scheduler struct {
	applier Applier
	frames  FrameClock
	ids     TokenGenerator
	onDone  CompletionFunc

	mu            sync.Mutex
	reducedMotion bool
	elements      map[state.Handle]*presentation
}

// presentation is the scheduler's per-element view of what the host UI is
// currently showing.
type presentation struct {
	statics     map[string]ir.StaticEffect     // channel -> applied static
	transitions map[string]ir.TransitionEffect // channel -> transition present in last set
	running     map[string]*RunningTransition  // channel -> in flight
	byID        map[string]string              // transition ID -> channel
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReducedMotion starts the scheduler in reduced-motion mode.
func WithReducedMotion(enabled bool) SchedulerOption {
	return func(s *Scheduler) {
		s.reducedMotion = enabled
	}
}

// WithCompletionFunc registers an observer for transition outcomes.
func WithCompletionFunc(fn CompletionFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.onDone = fn
	}
}

// NewScheduler creates a Scheduler driving the given applier.
func NewScheduler(applier Applier, frames FrameClock, ids TokenGenerator, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		applier:  applier,
		frames:   frames,
		ids:      ids,
		elements: make(map[state.Handle]*presentation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReducedMotion toggles reduced-motion mode. In this mode every
// transition's duration collapses to zero - enter/exit effect application
// still executes, transitions still start and complete (synchronously),
// so final state is identical to the animated path.
func (s *Scheduler) SetReducedMotion(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reducedMotion = enabled
}

// Register begins scheduling for an element. Idempotent.
func (s *Scheduler) Register(h state.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elements[h]; !ok {
		s.elements[h] = &presentation{
			statics:     make(map[string]ir.StaticEffect),
			transitions: make(map[string]ir.TransitionEffect),
			running:     make(map[string]*RunningTransition),
			byID:        make(map[string]string),
		}
	}
}

// Unregister drops the element's presentation record. Fails with
// *state.DanglingTransitionError while transitions are still running;
// callers cancel first (CancelAll), then unregister.
func (s *Scheduler) Unregister(h state.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.elements[h]
	if !ok {
		return &state.UnknownHandleError{Handle: h}
	}
	if n := len(p.running); n > 0 {
		return &state.DanglingTransitionError{Handle: h, Running: n}
	}
	delete(s.elements, h)
	return nil
}

// ActiveTransitions implements state.TransitionGuard.
func (s *Scheduler) ActiveTransitions(h state.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.elements[h]; ok {
		return len(p.running)
	}
	return 0
}

// Running returns a copy of the in-flight transition on a channel, if any.
func (s *Scheduler) Running(h state.Handle, channel string) (RunningTransition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.elements[h]
	if !ok {
		return RunningTransition{}, false
	}
	rt, ok := p.running[channel]
	if !ok {
		return RunningTransition{}, false
	}
	return *rt, true
}

// outcome defers callback invocation until the scheduler lock is released.
type outcome struct {
	element string
	desc    TransitionDescriptor
	result  TransitionResult
}

// Apply diffs the new resolved effect set against the element's current
// presentation and executes the difference: removed statics are removed,
// added/changed statics applied, transition effects fire on their trigger
// edges, and superseded transitions on busy channels are cancelled and
// replaced. Applying an identical set is a no-op - zero applier calls,
// zero transition starts.
//
// Fails with *state.UnknownHandleError for an unregistered element; that
// is always a caller sequencing bug and is never silently ignored.
func (s *Scheduler) Apply(h state.Handle, set EffectSet) error {
	s.mu.Lock()

	p, ok := s.elements[h]
	if !ok {
		s.mu.Unlock()
		return &state.UnknownHandleError{Handle: h}
	}

	elem := string(h)
	var done []outcome

	// Applier call order must be deterministic for replay: exits first in
	// sorted channel order, then enters in resolved-set order.
	newStatics := set.Statics()
	for _, ch := range sortedChannels(p.statics) {
		prev := p.statics[ch]
		next, keep := newStatics[ch]
		if !keep {
			s.applier.RemoveEffect(elem, prev)
			continue
		}
		if next != prev && next.Property != prev.Property {
			s.applier.RemoveEffect(elem, prev)
		}
	}
	for _, re := range set.Effects() {
		next, ok := re.Effect.(ir.StaticEffect)
		if !ok {
			continue
		}
		prev, had := p.statics[next.Channel()]
		if !had || next != prev {
			s.applier.ApplyEffect(elem, next)
		}
	}
	p.statics = newStatics

	// Transitions: fire on match edges. A channel whose winning effect
	// changed counts as exit of the old effect and enter of the new one;
	// the enter's start supersedes whatever still runs on the channel.
	newTrans := set.Transitions()
	for _, ch := range sortedChannels(p.transitions) {
		eff := p.transitions[ch]
		if next, keep := newTrans[ch]; keep && next == eff {
			continue
		}
		if eff.Trigger == ir.TriggerExit || eff.Trigger == ir.TriggerToggle {
			done = append(done, s.startLocked(h, p, eff, ir.TriggerExit)...)
		}
	}
	for _, re := range set.Effects() {
		eff, ok := re.Effect.(ir.TransitionEffect)
		if !ok {
			continue
		}
		if prev, had := p.transitions[eff.Channel()]; had && prev == eff {
			continue // unchanged, no re-trigger
		}
		if eff.Trigger == ir.TriggerEnter || eff.Trigger == ir.TriggerToggle {
			done = append(done, s.startLocked(h, p, eff, ir.TriggerEnter)...)
		}
	}
	p.transitions = newTrans

	s.mu.Unlock()
	s.notify(done)
	return nil
}

// startLocked starts one transition instance, cancelling whatever runs on
// its channel first. Returns the outcomes to report once the lock drops.
// Caller holds s.mu.
func (s *Scheduler) startLocked(h state.Handle, p *presentation, eff ir.TransitionEffect, edge ir.Trigger) []outcome {
	elem := string(h)
	ch := eff.Channel()
	now := s.frames.Now()

	var done []outcome
	startFrom := 0.0

	if prev, busy := p.running[ch]; busy {
		// Cancel-and-replace: read in-flight progress so the successor
		// resumes from the visual state the host is currently showing.
		startFrom = prev.ProgressAt(now)
		delete(p.running, ch)
		delete(p.byID, prev.ID)
		s.applier.CancelTransition(elem, prev.ID)
		done = append(done, outcome{elem, prev.Desc, ResultCancelled})
		slog.Debug("transition superseded",
			"element", elem,
			"channel", ch,
			"cancelled", prev.ID,
			"progress", startFrom,
		)
	}

	desc := TransitionDescriptor{
		ID:        s.ids.Generate(),
		Name:      eff.Name,
		Channel:   ch,
		Duration:  eff.Duration,
		Easing:    eff.Easing,
		Edge:      edge,
		StartFrom: startFrom,
	}
	if s.reducedMotion {
		desc.Duration = 0
	}

	s.applier.StartTransition(elem, desc)

	if desc.Duration <= 0 {
		// Nothing to wait for: complete synchronously, keep no record.
		done = append(done, outcome{elem, desc, ResultCompleted})
		return done
	}

	p.running[ch] = &RunningTransition{ID: desc.ID, Desc: desc, StartedAt: now}
	p.byID[desc.ID] = ch
	return done
}

// OnTransitionComplete records the host UI's report that a transition
// finished naturally. Returns false for IDs the scheduler no longer owns -
// a report racing a just-issued cancellation is legitimate and dropped
// with a debug log, never an error.
func (s *Scheduler) OnTransitionComplete(h state.Handle, transitionID string) bool {
	s.mu.Lock()

	p, ok := s.elements[h]
	if !ok {
		s.mu.Unlock()
		slog.Debug("completion for unknown element", "element", string(h), "transition", transitionID)
		return false
	}
	ch, ok := p.byID[transitionID]
	if !ok {
		s.mu.Unlock()
		slog.Debug("stale transition completion", "element", string(h), "transition", transitionID)
		return false
	}

	rt := p.running[ch]
	delete(p.running, ch)
	delete(p.byID, transitionID)
	s.mu.Unlock()

	s.notify([]outcome{{string(h), rt.Desc, ResultCompleted}})
	return true
}

// CancelAll synchronously cancels every running transition for an element.
// Called by the bridge before unregistering.
func (s *Scheduler) CancelAll(h state.Handle) {
	s.mu.Lock()

	p, ok := s.elements[h]
	if !ok {
		s.mu.Unlock()
		return
	}

	elem := string(h)
	var done []outcome
	for _, ch := range sortedChannels(p.running) {
		rt := p.running[ch]
		delete(p.running, ch)
		delete(p.byID, rt.ID)
		s.applier.CancelTransition(elem, rt.ID)
		done = append(done, outcome{elem, rt.Desc, ResultCancelled})
	}

	s.mu.Unlock()
	s.notify(done)
}

// sortedChannels returns a map's channel keys in sorted order so applier
// call sequences replay identically.
func sortedChannels[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Scheduler) notify(done []outcome) {
	if s.onDone == nil {
		return
	}
	for _, o := range done {
		s.onDone(o.element, o.desc, o.result)
	}
}
