package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veneer-dev/veneer/internal/engine"
	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/table"
	"github.com/veneer-dev/veneer/internal/testutil"
	"github.com/veneer-dev/veneer/internal/trace"
)

// hostApplier records outbound calls like a host UI adapter would receive
// them. Mutex-protected so Run-loop tests can poll from the test goroutine.
type hostApplier struct {
	mu    sync.Mutex
	calls []string
}

func (a *hostApplier) note(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, s)
}

func (a *hostApplier) ApplyEffect(elem string, eff ir.StaticEffect) {
	a.note("apply " + elem + " " + eff.Property + "=" + eff.Value)
}

func (a *hostApplier) RemoveEffect(elem string, eff ir.StaticEffect) {
	a.note("remove " + elem + " " + eff.Property)
}

func (a *hostApplier) StartTransition(elem string, desc engine.TransitionDescriptor) {
	a.note("start " + elem + " " + desc.Name)
}

func (a *hostApplier) CancelTransition(elem string, transitionID string) {
	a.note("cancel " + elem + " " + transitionID)
}

func (a *hostApplier) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

func chromeTable(t *testing.T) *table.Table {
	t.Helper()

	flags := []ir.FlagDecl{
		{Name: "selected", Kind: ir.KindBool},
		{Name: "busy", Kind: ir.KindBool},
		{Name: "theme", Kind: ir.KindEnum, Symbols: []string{"light", "dark"}},
	}
	rules := []ir.Rule{
		{
			ID: "selected-accent",
			Predicate: ir.Predicate{
				{Flag: "selected", Op: ir.OpEq, Value: ir.Bool(true)},
			},
			Effects: []ir.Effect{
				ir.StaticEffect{Property: "color", Value: "accent"},
				ir.StaticEffect{Property: "border", Value: "2px"},
			},
		},
		{
			ID:        "busy-pulse",
			Predicate: ir.Predicate{{Flag: "busy", Op: ir.OpEq, Value: ir.Bool(true)}},
			Effects: []ir.Effect{
				ir.TransitionEffect{Name: "pulse", Duration: 200 * time.Millisecond, Trigger: ir.TriggerToggle},
			},
		},
		{
			ID: "dark-selected",
			Predicate: ir.Predicate{
				{Flag: "selected", Op: ir.OpEq, Value: ir.Bool(true)},
				{Flag: "theme", Op: ir.OpEq, Value: ir.Enum("dark"), Root: true},
			},
			Effects: []ir.Effect{ir.StaticEffect{Property: "glow", Value: "on"}},
		},
	}

	tbl, err := table.Compile(flags, rules)
	require.NoError(t, err)
	return tbl
}

func newTestBridge(t *testing.T) (*Bridge, *hostApplier, *trace.Memory) {
	t.Helper()
	app := &hostApplier{}
	mem := trace.NewMemory()
	b := New(chromeTable(t), app,
		WithRecorder(mem),
		WithFrameClock(testutil.NewManualFrameClock()),
		WithTokenGenerator(testutil.NewSeqTokenGenerator("t")),
	)
	return b, app, mem
}

func kinds(events []trace.Event) []trace.Kind {
	out := make([]trace.Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestBridge_ObserveIsIdempotent(t *testing.T) {
	b, _, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventObserve, Element: "tab-1"}))
	require.NoError(t, b.Dispatch(Event{Type: EventObserve, Element: "tab-1"}))

	// Root registration plus one element, no duplicates.
	assert.Equal(t, []trace.Kind{trace.KindObserve, trace.KindObserve}, kinds(mem.Events()))
	assert.True(t, b.Store().Has("tab-1"))
}

func TestBridge_AttributeFlow(t *testing.T) {
	b, app, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "selected", Raw: "true"}))

	assert.Equal(t, []string{
		"apply tab-1 color=accent",
		"apply tab-1 border=2px",
	}, app.snapshot())

	events := mem.Events()
	assert.Equal(t, []trace.Kind{
		trace.KindObserve, // :root
		trace.KindObserve, // tab-1, auto-observed
		trace.KindSet,
		trace.KindApply,
		trace.KindApply,
	}, kinds(events))

	// Seq stamps are strictly increasing and carry the table hash.
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	assert.Equal(t, b.Table().Hash(), events[0].TableHash)
}

func TestBridge_InvalidValueDropped(t *testing.T) {
	b, app, mem := newTestBridge(t)
	require.NoError(t, b.Dispatch(Event{Type: EventObserve, Element: "tab-1"}))

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "theme", Raw: "sepia"}))

	events := mem.Events()
	last := events[len(events)-1]
	assert.Equal(t, trace.KindReject, last.Kind)
	assert.Equal(t, "sepia", last.Value)
	assert.Contains(t, last.Reason, "not in enum domain")

	// The element keeps its last fully-resolved presentation: no applier
	// calls, no state change.
	assert.Empty(t, app.snapshot())
	snap, err := b.Store().Snapshot("tab-1")
	require.NoError(t, err)
	assert.False(t, snap.Explicit("theme"))
}

func TestBridge_UnknownFlagDropped(t *testing.T) {
	b, app, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "sparkle", Raw: "true"}))

	events := mem.Events()
	last := events[len(events)-1]
	assert.Equal(t, trace.KindReject, last.Kind)
	assert.Equal(t, "unknown flag", last.Reason)
	assert.Empty(t, app.snapshot())
}

func TestBridge_NoopSetNotRecorded(t *testing.T) {
	b, app, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "selected", Raw: "false"}))

	// selected defaults to false: setting it false changes nothing.
	for _, ev := range mem.Events() {
		assert.NotEqual(t, trace.KindSet, ev.Kind)
	}
	assert.Empty(t, app.snapshot())
}

func TestBridge_RootFanout(t *testing.T) {
	b, app, _ := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "selected", Raw: "true"}))
	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-2", Flag: "selected", Raw: "true"}))

	// An ambient flag on the reserved root re-resolves every element, in
	// stable element order.
	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: DefaultRootElement, Flag: "theme", Raw: "dark"}))

	calls := app.snapshot()
	assert.Contains(t, calls, "apply tab-1 glow=on")
	assert.Contains(t, calls, "apply tab-2 glow=on")
	require.Len(t, calls, 6)
	assert.Equal(t, "apply tab-1 glow=on", calls[4])
	assert.Equal(t, "apply tab-2 glow=on", calls[5])
}

func TestBridge_TransitionLifecycle(t *testing.T) {
	b, app, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "busy", Raw: "true"}))
	assert.Contains(t, app.snapshot(), "start tab-1 pulse")
	assert.Equal(t, 1, b.Scheduler().ActiveTransitions("tab-1"))

	require.NoError(t, b.Dispatch(Event{Type: EventCompletion, Element: "tab-1", TransitionID: "t-1"}))
	assert.Zero(t, b.Scheduler().ActiveTransitions("tab-1"))

	events := mem.Events()
	last := events[len(events)-1]
	assert.Equal(t, trace.KindComplete, last.Kind)
	assert.Equal(t, "pulse", last.Transition)
	assert.Equal(t, "t-1", last.TransitionID)

	// Stale completions leave no trace.
	n := len(mem.Events())
	require.NoError(t, b.Dispatch(Event{Type: EventCompletion, Element: "tab-1", TransitionID: "t-1"}))
	assert.Len(t, mem.Events(), n)
}

func TestBridge_ChannelCompletion(t *testing.T) {
	b, _, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "busy", Raw: "true"}))
	require.NoError(t, b.Dispatch(Event{Type: EventChannelCompletion, Element: "tab-1", Channel: "pulse"}))

	assert.Zero(t, b.Scheduler().ActiveTransitions("tab-1"))
	last := mem.Events()[len(mem.Events())-1]
	assert.Equal(t, trace.KindComplete, last.Kind)

	// Completing an idle channel is a stale report, dropped silently.
	n := len(mem.Events())
	require.NoError(t, b.Dispatch(Event{Type: EventChannelCompletion, Element: "tab-1", Channel: "pulse"}))
	assert.Len(t, mem.Events(), n)
}

func TestBridge_RemovalCancelsAndDrops(t *testing.T) {
	b, app, mem := newTestBridge(t)

	require.NoError(t, b.Dispatch(Event{Type: EventAttribute, Element: "tab-1", Flag: "busy", Raw: "true"}))
	require.NoError(t, b.Dispatch(Event{Type: EventRemoval, Element: "tab-1"}))

	assert.Contains(t, app.snapshot(), "cancel tab-1 t-1")
	assert.False(t, b.Store().Has("tab-1"))
	assert.Zero(t, b.Scheduler().ActiveTransitions("tab-1"))

	events := mem.Events()
	assert.Equal(t, trace.KindDrop, events[len(events)-1].Kind)
	assert.Equal(t, trace.KindCancel, events[len(events)-2].Kind)
}

func TestBridge_RootCannotBeRemoved(t *testing.T) {
	b, _, _ := newTestBridge(t)

	err := b.Dispatch(Event{Type: EventRemoval, Element: DefaultRootElement})
	require.Error(t, err)
	assert.True(t, b.Store().Has(DefaultRootElement))
}

func TestBridge_RunLoop(t *testing.T) {
	b, app, _ := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.True(t, b.OnAttributeChanged("tab-1", "selected", "true"))

	require.Eventually(t, func() bool {
		calls := app.snapshot()
		return len(calls) == 2 && calls[0] == "apply tab-1 color=accent"
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// Stopped bridge rejects further events.
	assert.False(t, b.OnAttributeChanged("tab-1", "selected", "false"))
}

// Enqueue coalesces wakeup signals, so after a burst drains a spent token
// can still sit in the channel. The loop must keep serving events across
// idle periods and end only on Stop or cancellation.
func TestBridge_RunLoopSurvivesIdle(t *testing.T) {
	b, app, _ := newTestBridge(t)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.True(t, b.OnAttributeChanged("tab-1", "selected", "true"))
	require.Eventually(t, func() bool {
		return len(app.snapshot()) == 2
	}, time.Second, time.Millisecond)

	// A second burst after the queue went idle must still be processed.
	require.True(t, b.OnAttributeChanged("tab-1", "busy", "true"))
	require.Eventually(t, func() bool {
		calls := app.snapshot()
		return len(calls) == 3 && calls[2] == "start tab-1 pulse"
	}, time.Second, time.Millisecond)

	// Stop drains and returns cleanly; later events are rejected.
	b.Stop()
	assert.NoError(t, <-done)
	assert.False(t, b.OnAttributeChanged("tab-1", "selected", "false"))
}
