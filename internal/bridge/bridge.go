// Package bridge is the observer boundary between the host UI and the
// resolution pipeline. Inbound it translates raw attribute text into typed
// flag mutations; outbound it drives the host's Applier with resolved
// effects and transition edges. Every observable event is stamped with the
// logical clock and recorded to the trace.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/veneer-dev/veneer/internal/engine"
	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/state"
	"github.com/veneer-dev/veneer/internal/table"
	"github.com/veneer-dev/veneer/internal/trace"
)

// DefaultRootElement is the reserved element ID carrying ambient flags
// (theme, reduced-motion, zen mode). Root-scoped predicate tests read its
// state regardless of which element is being resolved.
const DefaultRootElement = ":root"

// Bridge owns the pipeline for one rule table: state store, resolver, and
// scheduler, wired to the host's applier.
//
// Thread-safety model:
//   - Enqueue and the On* callbacks: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Dispatch: synchronous processing for harness/replay use; must not
//     run concurrently with Run
//
// All mutations and resolutions happen on the processing goroutine, so
// per-element serialization holds by construction and the trace is totally
// ordered by the sequence clock.
type Bridge struct {
	tbl       *table.Table
	store     *state.Store
	resolver  *engine.Resolver
	scheduler *engine.Scheduler
	clock     *engine.SeqClock
	recorder  trace.Recorder
	queue     *eventQueue
	rootID    string

	// matchSets is touched only from the processing goroutine.
	matchSets map[state.Handle]*engine.MatchSet
}

// Option configures a Bridge.
type Option func(*config)

type config struct {
	recorder      trace.Recorder
	frames        engine.FrameClock
	ids           engine.TokenGenerator
	clock         *engine.SeqClock
	rootID        string
	reducedMotion bool
}

// WithRecorder sets the trace sink. Without one the bridge runs untraced.
func WithRecorder(r trace.Recorder) Option {
	return func(c *config) { c.recorder = r }
}

// WithFrameClock replaces the wall frame clock, for deterministic tests.
func WithFrameClock(fc engine.FrameClock) Option {
	return func(c *config) { c.frames = fc }
}

// WithTokenGenerator replaces the UUIDv7 transition ID generator.
func WithTokenGenerator(g engine.TokenGenerator) Option {
	return func(c *config) { c.ids = g }
}

// WithClock resumes the sequence clock, e.g. from a recorded trace.
func WithClock(clock *engine.SeqClock) Option {
	return func(c *config) { c.clock = clock }
}

// WithRootElement overrides the reserved root element ID.
func WithRootElement(id string) Option {
	return func(c *config) { c.rootID = id }
}

// WithReducedMotion starts the pipeline in reduced-motion mode.
func WithReducedMotion(enabled bool) Option {
	return func(c *config) { c.reducedMotion = enabled }
}

// New creates a Bridge over a compiled table, driving the given applier.
// The reserved root element is registered immediately so ambient flags can
// be set before any element is observed.
func New(tbl *table.Table, applier engine.Applier, opts ...Option) *Bridge {
	cfg := config{
		frames: engine.NewWallClock(),
		ids:    engine.UUIDv7Generator{},
		clock:  engine.NewSeqClock(),
		rootID: DefaultRootElement,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Bridge{
		tbl:       tbl,
		resolver:  engine.NewResolver(tbl),
		clock:     cfg.clock,
		recorder:  cfg.recorder,
		queue:     newEventQueue(),
		rootID:    cfg.rootID,
		matchSets: make(map[state.Handle]*engine.MatchSet),
	}

	b.scheduler = engine.NewScheduler(
		&recordingApplier{bridge: b, host: applier},
		cfg.frames,
		cfg.ids,
		engine.WithReducedMotion(cfg.reducedMotion),
		engine.WithCompletionFunc(b.onTransitionDone),
	)
	b.store = state.NewStore(tbl, state.WithTransitionGuard(b.scheduler))

	b.observe(b.rootID)
	return b
}

// Table returns the compiled rule table in force.
func (b *Bridge) Table() *table.Table {
	return b.tbl
}

// Scheduler exposes the transition scheduler for assertions and mode
// switches (reduced motion).
func (b *Bridge) Scheduler() *engine.Scheduler {
	return b.scheduler
}

// Store exposes the state store for read-only inspection.
func (b *Bridge) Store() *state.Store {
	return b.store
}

// Clock returns the bridge's logical clock.
func (b *Bridge) Clock() *engine.SeqClock {
	return b.clock
}

// QueueLen returns the number of pending inbound events.
func (b *Bridge) QueueLen() int {
	return b.queue.Len()
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false if the bridge has been stopped.
func (b *Bridge) Enqueue(ev Event) bool {
	return b.queue.Enqueue(ev)
}

// Observe begins tracking an element. Idempotent.
func (b *Bridge) Observe(elementID string) bool {
	return b.Enqueue(Event{Type: EventObserve, Element: elementID})
}

// OnAttributeChanged reports a raw attribute update from the host UI.
func (b *Bridge) OnAttributeChanged(elementID, flag, raw string) bool {
	return b.Enqueue(Event{Type: EventAttribute, Element: elementID, Flag: flag, Raw: raw})
}

// OnElementRemoved reports an element leaving the host UI tree.
func (b *Bridge) OnElementRemoved(elementID string) bool {
	return b.Enqueue(Event{Type: EventRemoval, Element: elementID})
}

// OnTransitionComplete reports natural completion of a transition.
func (b *Bridge) OnTransitionComplete(elementID, transitionID string) bool {
	return b.Enqueue(Event{Type: EventCompletion, Element: elementID, TransitionID: transitionID})
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called.
//
// ERROR HANDLING: on event processing failure the error is logged with
// full event context and processing continues. Retrying would make replay
// non-deterministic; operators investigate from the log.
func (b *Bridge) Run(ctx context.Context) error {
	slog.Info("bridge starting", "table_hash", b.tbl.Hash(), "root", b.rootID)

	for {
		event, ok := b.queue.TryDequeue()
		if ok {
			if err := b.Dispatch(event); err != nil {
				slog.Error("event processing failed",
					"error", err,
					"type", event.Type,
					"element", event.Element,
					"flag", event.Flag,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("bridge stopping: context cancelled")
			b.queue.Close()
			return ctx.Err()

		case <-b.queue.Wait():
			// The signal coalesces, so a wakeup with an empty queue can be
			// a leftover token from an already-drained burst. Only a closed
			// queue ends the loop.
			if b.queue.Len() == 0 && b.queue.Closed() {
				slog.Info("bridge stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the bridge; Run returns once the queue
// drains.
func (b *Bridge) Stop() {
	b.queue.Close()
}

// Dispatch processes one event synchronously on the caller's goroutine.
// The harness and replay drive the pipeline step by step through this;
// production code enqueues and lets Run process.
func (b *Bridge) Dispatch(ev Event) error {
	switch ev.Type {
	case EventObserve:
		b.observe(ev.Element)
		return nil
	case EventAttribute:
		return b.handleAttribute(ev.Element, ev.Flag, ev.Raw)
	case EventRemoval:
		return b.handleRemoval(ev.Element)
	case EventCompletion:
		b.scheduler.OnTransitionComplete(state.Handle(ev.Element), ev.TransitionID)
		return nil
	case EventChannelCompletion:
		return b.handleChannelCompletion(ev.Element, ev.Channel)
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

// observe registers an element, performs its initial full resolution, and
// applies the result. Idempotent: an already-tracked element is untouched.
func (b *Bridge) observe(elementID string) {
	h := b.store.Register(elementID)
	if _, tracked := b.matchSets[h]; tracked {
		return
	}

	b.scheduler.Register(h)
	b.record(trace.Event{Kind: trace.KindObserve, Element: elementID})

	snap, err := b.store.Snapshot(h)
	if err != nil {
		// Unreachable: the handle was just registered.
		slog.Error("snapshot after register failed", "element", elementID, "error", err)
		return
	}
	ms, set := b.resolver.ResolveFull(snap, b.rootSnapshot())
	b.matchSets[h] = ms

	if err := b.scheduler.Apply(h, set); err != nil {
		slog.Error("initial apply failed", "element", elementID, "error", err)
	}
}

// handleAttribute translates a raw attribute update into a typed mutation
// and re-resolves affected elements. Invalid updates are dropped with a
// recorded rejection; the element keeps its last fully-resolved state.
func (b *Bridge) handleAttribute(elementID, flag, raw string) error {
	b.observe(elementID)
	h := state.Handle(elementID)

	decl, ok := b.tbl.Decl(flag)
	if !ok {
		slog.Warn("dropping update for unknown flag", "element", elementID, "flag", flag)
		b.record(trace.Event{
			Kind: trace.KindReject, Element: elementID,
			Flag: flag, Value: raw, Reason: "unknown flag",
		})
		return nil
	}

	value, err := decl.Parse(raw)
	if err != nil {
		slog.Warn("dropping invalid attribute value",
			"element", elementID, "flag", flag, "raw", raw, "error", err)
		b.record(trace.Event{
			Kind: trace.KindReject, Element: elementID,
			Flag: flag, Value: raw, Reason: err.Error(),
		})
		return nil
	}

	changed, err := b.store.SetFlag(h, flag, value)
	if err != nil {
		return fmt.Errorf("set %s=%s on %s: %w", flag, value, elementID, err)
	}
	if !changed {
		slog.Debug("no-op flag update", "element", elementID, "flag", flag)
		return nil
	}

	b.record(trace.Event{
		Kind: trace.KindSet, Element: elementID,
		Flag: flag, Value: value.String(),
	})

	if h == state.Handle(b.rootID) {
		// Ambient flags feed every element's predicates; fan out the
		// delta in stable order.
		return b.reresolveAll(flag)
	}
	return b.reresolve(h, flag)
}

// reresolve runs the incremental resolution path for one element and
// applies the difference.
func (b *Bridge) reresolve(h state.Handle, changedFlag string) error {
	ms, ok := b.matchSets[h]
	if !ok {
		return &state.UnknownHandleError{Handle: h}
	}

	snap, err := b.store.Snapshot(h)
	if err != nil {
		return err
	}
	set := b.resolver.ResolveDelta(ms, changedFlag, snap, b.rootSnapshot())
	return b.scheduler.Apply(h, set)
}

// reresolveAll re-resolves every tracked element after a root flag change.
func (b *Bridge) reresolveAll(changedFlag string) error {
	handles := b.store.Handles()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	for _, h := range handles {
		if err := b.reresolve(h, changedFlag); err != nil {
			return err
		}
	}
	return nil
}

// handleRemoval tears an element down: cancel transitions, then
// unregister from scheduler and store.
func (b *Bridge) handleRemoval(elementID string) error {
	h := state.Handle(elementID)
	if !b.store.Has(h) {
		slog.Warn("removal for untracked element", "element", elementID)
		return nil
	}
	if h == state.Handle(b.rootID) {
		return fmt.Errorf("the root element %q cannot be removed", elementID)
	}

	b.scheduler.CancelAll(h)
	if err := b.scheduler.Unregister(h); err != nil {
		return fmt.Errorf("unregister %s from scheduler: %w", elementID, err)
	}
	if err := b.store.Unregister(h); err != nil {
		return fmt.Errorf("unregister %s from store: %w", elementID, err)
	}
	delete(b.matchSets, h)

	b.record(trace.Event{Kind: trace.KindDrop, Element: elementID})
	return nil
}

// handleChannelCompletion finishes the transition currently running on a
// channel. A channel with nothing running is a stale report, dropped like
// a stale ID.
func (b *Bridge) handleChannelCompletion(elementID, channel string) error {
	h := state.Handle(elementID)
	rt, ok := b.scheduler.Running(h, channel)
	if !ok {
		slog.Debug("completion for idle channel", "element", elementID, "channel", channel)
		return nil
	}
	b.scheduler.OnTransitionComplete(h, rt.ID)
	return nil
}

func (b *Bridge) rootSnapshot() state.Snapshot {
	snap, err := b.store.Snapshot(state.Handle(b.rootID))
	if err != nil {
		// The root element is registered at construction and can never be
		// removed, so this only happens on misuse of the store directly.
		slog.Error("root snapshot failed", "root", b.rootID, "error", err)
		return state.Snapshot{}
	}
	return snap
}

// onTransitionDone records transition outcomes reported by the scheduler.
func (b *Bridge) onTransitionDone(elementID string, desc engine.TransitionDescriptor, result engine.TransitionResult) {
	kind := trace.KindComplete
	if result == engine.ResultCancelled {
		kind = trace.KindCancel
	}
	b.record(trace.Event{
		Kind:         kind,
		Element:      elementID,
		Transition:   desc.Name,
		Channel:      desc.Channel,
		TransitionID: desc.ID,
	})
}

// record stamps and writes one trace event. Recording failures are logged,
// never propagated: a broken trace sink must not stall presentation.
func (b *Bridge) record(ev trace.Event) {
	if b.recorder == nil {
		return
	}
	ev.Seq = b.clock.Next()
	ev.TableHash = b.tbl.Hash()
	if err := b.recorder.Record(context.Background(), ev); err != nil {
		slog.Error("trace record failed", "kind", ev.Kind, "element", ev.Element, "error", err)
	}
}

// recordingApplier forwards applier calls to the host and mirrors them
// into the trace.
type recordingApplier struct {
	bridge *Bridge
	host   engine.Applier
}

func (a *recordingApplier) ApplyEffect(elementID string, eff ir.StaticEffect) {
	a.host.ApplyEffect(elementID, eff)
	a.bridge.record(trace.Event{
		Kind: trace.KindApply, Element: elementID,
		Property: eff.Property, Value: eff.Value, Channel: eff.Channel(),
	})
}

func (a *recordingApplier) RemoveEffect(elementID string, eff ir.StaticEffect) {
	a.host.RemoveEffect(elementID, eff)
	a.bridge.record(trace.Event{
		Kind: trace.KindRemove, Element: elementID,
		Property: eff.Property, Value: eff.Value, Channel: eff.Channel(),
	})
}

func (a *recordingApplier) StartTransition(elementID string, desc engine.TransitionDescriptor) {
	a.host.StartTransition(elementID, desc)
	a.bridge.record(trace.Event{
		Kind: trace.KindStart, Element: elementID,
		Transition: desc.Name, Channel: desc.Channel,
		TransitionID: desc.ID, Progress: desc.StartFrom,
	})
}

func (a *recordingApplier) CancelTransition(elementID string, transitionID string) {
	// The cancel record is written by the completion callback, which has
	// the full descriptor; here only the ID is known.
	a.host.CancelTransition(elementID, transitionID)
}
