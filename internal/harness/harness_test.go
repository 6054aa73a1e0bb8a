package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenarioWithBasePath("testdata/"+name, "testdata")
	require.NoError(t, err)
	return s
}

func TestRun_SelectedAccent(t *testing.T) {
	scenario := loadTestScenario(t, "selected_accent.yaml")

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)

	// The deselect removed the accent again.
	_, active := result.applier.Active("tab-1", "color")
	assert.False(t, active)
}

func TestRun_BusyPulse(t *testing.T) {
	scenario := loadTestScenario(t, "busy_pulse.yaml")

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
}

func TestRun_DarkGlowRootFanout(t *testing.T) {
	scenario := loadTestScenario(t, "dark_glow.yaml")

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)

	glow, active := result.applier.Active("tab-1", "glow")
	require.True(t, active)
	assert.Equal(t, "on", glow)
}

func TestRun_ChannelSwap(t *testing.T) {
	scenario := loadTestScenario(t, "channel_swap.yaml")

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)

	// The last completion belongs to the glow that took over the channel.
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "glow", last.Transition)
}

func TestRun_FailedAssertionReported(t *testing.T) {
	scenario := loadTestScenario(t, "selected_accent.yaml")
	scenario.Assertions = append(scenario.Assertions, Assertion{
		Type:     AssertEffectActive,
		Element:  "tab-1",
		Property: "color",
		Value:    "accent",
	})

	result, err := Run(scenario)
	require.NoError(t, err)

	// The scenario ends deselected, so the extra assertion fails.
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "effect_active")
	assert.Contains(t, result.Errors[0], "property not applied")
}

func TestRun_ReducedMotionCompletesSynchronously(t *testing.T) {
	scenario := loadTestScenario(t, "busy_pulse.yaml")
	scenario.ReducedMotion = true

	// With reduced motion the pulse completes at start; the explicit
	// completion steps become stale reports.
	scenario.Steps = []Step{
		{Set: &SetStep{Element: "tab-1", Flag: "busy", Value: "true"}},
		{Set: &SetStep{Element: "tab-1", Flag: "busy", Value: "false"}},
	}
	scenario.Assertions = []Assertion{
		{Type: AssertTransitionCount, Transition: "pulse", Count: 2},
		{Type: AssertNoRunning, Element: "tab-1"},
		{Type: AssertTraceOrder, Kinds: []string{"start", "complete", "start", "complete"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
}

func TestRun_UnknownTableFails(t *testing.T) {
	scenario := loadTestScenario(t, "selected_accent.yaml")
	scenario.Table = "testdata/tables/missing.cue"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load rule table")
}

func TestEvaluateAssertions_TraceOrderMismatch(t *testing.T) {
	scenario := loadTestScenario(t, "selected_accent.yaml")
	scenario.Assertions = []Assertion{
		{Type: AssertTraceOrder, Kinds: []string{"remove", "apply"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "trace_order")
}
