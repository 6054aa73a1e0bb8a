package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario drops a scenario file plus a minimal table fixture into a
// temp dir and returns the scenario path.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()

	table := `rules: {
	flags: {selected: "bool"}
	rule: {
		"selected-accent": {
			when: [{flag: "selected", is: true}]
			effects: [{set: "color", to: "accent"}]
		}
	}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chrome.cue"), []byte(table), 0o644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validScenarioYAML = `name: test
description: loader round trip
table: chrome.cue
steps:
  - set: {element: tab-1, flag: selected, value: "true"}
  - advance: 80ms
assertions:
  - type: no_running
    element: tab-1
`

func TestLoadScenario_RoundTrip(t *testing.T) {
	path := writeScenario(t, validScenarioYAML)

	s, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.NoError(t, err)

	assert.Equal(t, "test", s.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "chrome.cue"), s.Table)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "tab-1", s.Steps[0].Set.Element)
	assert.Equal(t, 80*time.Millisecond, s.Steps[1].advance)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `name: test
description: typo in section name
table: chrome.cue
steps:
  - set: {element: tab-1, flag: selected, value: "true"}
assertion:
  - type: no_running
    element: tab-1
`)

	_, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingTable(t *testing.T) {
	path := writeScenario(t, `name: test
description: table file does not exist
table: nope.cue
steps:
  - set: {element: tab-1, flag: selected, value: "true"}
assertions:
  - type: no_running
    element: tab-1
`)

	_, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table file not found")
}

func TestLoadScenario_StepExclusivity(t *testing.T) {
	path := writeScenario(t, `name: test
description: one step carries two kinds
table: chrome.cue
steps:
  - set: {element: tab-1, flag: selected, value: "true"}
    advance: 80ms
assertions:
  - type: no_running
    element: tab-1
`)

	_, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of set, remove, complete, advance")
}

func TestLoadScenario_BadAdvanceDuration(t *testing.T) {
	path := writeScenario(t, `name: test
description: advance is not a duration
table: chrome.cue
steps:
  - advance: fast
assertions:
  - type: no_running
    element: tab-1
`)

	_, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0].advance")
}

func TestLoadScenario_AssertionValidation(t *testing.T) {
	cases := []struct {
		name      string
		assertion string
		want      string
	}{
		{
			name:      "unknown type",
			assertion: "  - type: final_state",
			want:      `unknown assertion type "final_state"`,
		},
		{
			name:      "effect_active missing property",
			assertion: "  - type: effect_active\n    element: tab-1",
			want:      "property is required",
		},
		{
			name:      "no_running missing element",
			assertion: "  - type: no_running",
			want:      "element is required",
		},
		{
			name:      "transition_count missing transition",
			assertion: "  - type: transition_count\n    count: 2",
			want:      "transition is required",
		},
		{
			name:      "trace_order missing kinds",
			assertion: "  - type: trace_order",
			want:      "kinds list is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeScenario(t, `name: test
description: assertion validation
table: chrome.cue
steps:
  - set: {element: tab-1, flag: selected, value: "true"}
assertions:
`+tc.assertion+"\n")

			_, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
