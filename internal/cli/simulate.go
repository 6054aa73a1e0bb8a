package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/veneer-dev/veneer/internal/harness"
	"github.com/veneer-dev/veneer/internal/trace"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	ShowTrace bool
}

// SimulateResult is the JSON payload for a scenario run.
type SimulateResult struct {
	Scenario string        `json:"scenario"`
	Pass     bool          `json:"pass"`
	Errors   []string      `json:"errors,omitempty"`
	Events   int           `json:"events"`
	Trace    []trace.Event `json:"trace,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a YAML scenario against a fresh pipeline",
		Long: `Run a conformance scenario.

The scenario names a CUE rule table, a flow of host events (attribute
updates, removals, transition completions, frame-clock advances), and
assertions over the resulting trace and final presentation state. The
pipeline runs with deterministic clocks, so repeated runs produce the
same trace.

Table paths inside the scenario resolve relative to the scenario file.

Exit codes:
  0 - Scenario passed
  1 - One or more assertions failed
  2 - Command error (bad scenario file, table failed to compile, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "print the full recorded trace")

	return cmd
}

func runSimulate(opts *SimulateOptions, scenarioPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenarioWithBasePath(scenarioPath, filepath.Dir(scenarioPath))
	if err != nil {
		_ = formatter.Error("scenario", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	formatter.VerboseLog("Running scenario %q (%d steps, %d assertions)",
		scenario.Name, len(scenario.Steps), len(scenario.Assertions))

	result, err := harness.Run(scenario)
	if err != nil {
		_ = formatter.Error("run", err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	payload := SimulateResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Events:   len(result.Trace),
	}
	if opts.ShowTrace {
		payload.Trace = result.Trace
	}

	if formatter.Format == "json" {
		if err := formatter.Success(payload); err != nil {
			return err
		}
		if !result.Pass {
			return NewExitError(ExitFailure, fmt.Sprintf("scenario %q failed", scenario.Name))
		}
		return nil
	}

	if result.Pass {
		fmt.Fprintf(formatter.Writer, "✓ %s passed (%d events)\n", scenario.Name, payload.Events)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s failed\n\n", scenario.Name)
		for _, msg := range result.Errors {
			fmt.Fprintln(formatter.Writer, msg)
		}
	}

	if opts.ShowTrace {
		fmt.Fprintln(formatter.Writer, "\nTrace:")
		for _, ev := range result.Trace {
			fmt.Fprintf(formatter.Writer, "  %s\n", formatTraceEvent(ev))
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %q failed", scenario.Name))
	}
	return nil
}
