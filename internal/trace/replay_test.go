package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []Event {
	return []Event{
		{Seq: 1, Kind: KindObserve, Element: "tab-1"},
		{Seq: 2, Kind: KindSet, Element: "tab-1", Flag: "selected", Value: "true"},
		{Seq: 3, Kind: KindApply, Element: "tab-1", Property: "color", Value: "accent", Channel: "color"},
		{Seq: 4, Kind: KindStart, Element: "tab-1", Transition: "pulse", Channel: "pulse", TransitionID: "t-1"},
		{Seq: 5, Kind: KindComplete, Element: "tab-1", Transition: "pulse", Channel: "pulse", TransitionID: "t-1"},
		{Seq: 6, Kind: KindReject, Element: "tab-1", Flag: "theme", Value: "sepia", Reason: "not in enum domain"},
		{Seq: 7, Kind: KindDrop, Element: "tab-1"},
	}
}

func TestInputs_FiltersOutputs(t *testing.T) {
	inputs := Inputs(sampleTrace())

	kinds := make([]Kind, len(inputs))
	for i, ev := range inputs {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []Kind{KindObserve, KindSet, KindComplete, KindReject, KindDrop}, kinds)
}

func TestVerify_IdenticalTraces(t *testing.T) {
	assert.NoError(t, Verify(sampleTrace(), sampleTrace()))
}

func TestVerify_IgnoresSeqAndTransitionID(t *testing.T) {
	recorded := sampleTrace()
	replayed := sampleTrace()
	for i := range replayed {
		replayed[i].Seq += 100
		if replayed[i].TransitionID != "" {
			replayed[i].TransitionID = "different-id"
		}
		if replayed[i].Kind == KindStart {
			replayed[i].Progress = 0.37
		}
	}
	assert.NoError(t, Verify(recorded, replayed))
}

func TestTableHashOf(t *testing.T) {
	assert.Empty(t, TableHashOf(sampleTrace()))

	events := sampleTrace()
	events[1].TableHash = "abc123"
	assert.Equal(t, "abc123", TableHashOf(events))
}

func TestVerify_ValueDivergence(t *testing.T) {
	recorded := sampleTrace()
	replayed := sampleTrace()
	replayed[2].Value = "grey"

	err := Verify(recorded, replayed)
	var div *DivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, 2, div.Index)
	assert.Equal(t, "accent", div.Recorded.Value)
	assert.Equal(t, "grey", div.Replayed.Value)
}

func TestVerify_MissingEvent(t *testing.T) {
	recorded := sampleTrace()
	replayed := sampleTrace()[:5]

	err := Verify(recorded, replayed)
	var div *DivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, 5, div.Index)
	assert.Nil(t, div.Replayed)
	assert.Contains(t, err.Error(), "replay missing event")
}

func TestVerify_ExtraEvent(t *testing.T) {
	recorded := sampleTrace()
	replayed := append(sampleTrace(), Event{Kind: KindApply, Element: "tab-2", Property: "color", Value: "blue"})

	err := Verify(recorded, replayed)
	var div *DivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, len(recorded), div.Index)
	assert.Nil(t, div.Recorded)
	assert.Contains(t, err.Error(), "extra event")
}

func TestVerify_OrderMatters(t *testing.T) {
	recorded := sampleTrace()
	replayed := sampleTrace()
	replayed[2], replayed[3] = replayed[3], replayed[2]

	var div *DivergenceError
	require.ErrorAs(t, Verify(recorded, replayed), &div)
	assert.Equal(t, 2, div.Index)
}
