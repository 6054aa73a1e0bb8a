package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runPipeline executes the run command with the given stdin lines and
// returns stdout.
func runPipeline(t *testing.T, tablePath, dbPath, input string) string {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs([]string{"run", "--table", tablePath, "--db", dbPath})
	require.NoError(t, cmd.Execute())
	return out.String()
}

func sessionInput() string {
	return strings.Join([]string{
		`{"type":"observe","element":"tab-1"}`,
		`{"type":"set","element":"tab-1","flag":"selected","value":"true"}`,
		`{"type":"set","element":"tab-1","flag":"busy","value":"true"}`,
		`{"type":"complete","element":"tab-1","channel":"pulse"}`,
		`{"type":"set","element":"tab-1","flag":"theme","value":"sepia"}`,
		`{"type":"remove","element":"tab-1"}`,
		``,
	}, "\n")
}

func TestRun_EmitsOutboundCalls(t *testing.T) {
	tablePath := writeChromeTable(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	out := runPipeline(t, tablePath, dbPath, sessionInput())

	assert.Contains(t, out, `"op":"apply"`)
	assert.Contains(t, out, `"property":"color"`)
	assert.Contains(t, out, `"op":"start"`)
	assert.Contains(t, out, `"transition":"pulse"`)
}

func TestRun_TraceDump(t *testing.T) {
	tablePath := writeChromeTable(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	runPipeline(t, tablePath, dbPath, sessionInput())

	out, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Table hash:")
	assert.Contains(t, out, "observe")
	assert.Contains(t, out, "selected=true")
	// The sepia update was outside the theme enum.
	assert.Contains(t, out, "reject")
	assert.Contains(t, out, "drop")
}

func TestRun_TraceDumpFilters(t *testing.T) {
	tablePath := writeChromeTable(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	runPipeline(t, tablePath, dbPath, sessionInput())

	out, err := execute(t, "trace", "--db", dbPath, "--kind", "reject")
	require.NoError(t, err)
	assert.Contains(t, out, "reject")
	assert.NotContains(t, out, "observe")
}

func TestRun_ReplayIsDeterministic(t *testing.T) {
	tablePath := writeChromeTable(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	runPipeline(t, tablePath, dbPath, sessionInput())

	out, err := execute(t, "replay", "--table", tablePath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Trace is deterministic")
}

func TestRun_ReplayRejectsDifferentTable(t *testing.T) {
	tablePath := writeChromeTable(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")
	runPipeline(t, tablePath, dbPath, sessionInput())

	// A different rule set compiles to a different hash.
	otherPath := filepath.Join(t.TempDir(), "other.cue")
	require.NoError(t, os.WriteFile(otherPath, []byte(`rules: {
	flags: {selected: "bool"}
	rule: {
		"selected-accent": {
			when: [{flag: "selected", is: true}]
			effects: [{set: "color", to: "blue"}]
		}
	}
}`), 0o644))

	out, err := execute(t, "replay", "--table", otherPath, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Table hash mismatch")
}

func TestRun_MalformedLinesDropped(t *testing.T) {
	tablePath := writeChromeTable(t)
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	input := strings.Join([]string{
		`not json`,
		`{"type":"teleport","element":"tab-1"}`,
		`{"type":"set","element":"tab-1","flag":"selected","value":"true"}`,
		``,
	}, "\n")

	out := runPipeline(t, tablePath, dbPath, input)
	assert.Contains(t, out, `"op":"apply"`)
}
