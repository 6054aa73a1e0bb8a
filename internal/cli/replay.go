package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veneer-dev/veneer/internal/bridge"
	"github.com/veneer-dev/veneer/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Table    string
	Database string
}

// ReplayResult holds the replay verdict.
type ReplayResult struct {
	Deterministic bool   `json:"deterministic"`
	Events        int    `json:"events"`
	Inputs        int    `json:"inputs"`
	TableHash     string `json:"table_hash"`
	Divergence    string `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded trace and verify determinism",
		Long: `Replay a recorded trace to verify determinism.

Re-feeds the trace's recorded inputs (element observations, attribute
updates, removals, transition completions) through a fresh pipeline over
the given rule table and checks that the emitted events match the
recording exactly. The table's content hash must match the hash the trace
was recorded with.

Exit codes:
  0 - Trace is deterministic
  1 - Verification failed (divergence or table hash mismatch)
  2 - Command error (database not found, table failed to compile, etc.)

Examples:
  veneer replay --table chrome.cue --db trace.db
  veneer replay --table chrome.cue --db trace.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "path to CUE rule table (required)")
	_ = cmd.MarkFlagRequired("table")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tbl, _, err := loadTable(opts.Table)
	if err != nil {
		return reportTableErrors(formatter, err)
	}

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	recorded, err := st.Events(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	result := ReplayResult{
		Deterministic: true,
		Events:        len(recorded),
		Inputs:        len(trace.Inputs(recorded)),
		TableHash:     tbl.Hash(),
	}

	replayErr := bridge.Replay(tbl, recorded)
	if replayErr != nil {
		result.Deterministic = false
		result.Divergence = replayErr.Error()
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
		return replayVerdict(replayErr)
	}

	if result.Deterministic {
		fmt.Fprintf(formatter.Writer, "✓ Trace is deterministic: %d event(s), %d input(s) replayed\n",
			result.Events, result.Inputs)
		return nil
	}

	var mismatch *trace.HashMismatchError
	if errors.As(replayErr, &mismatch) {
		fmt.Fprintln(formatter.Writer, "✗ Table hash mismatch")
		fmt.Fprintf(formatter.Writer, "  Recorded: %s\n", mismatch.Recorded)
		fmt.Fprintf(formatter.Writer, "  Current:  %s\n", mismatch.Current)
		return replayVerdict(replayErr)
	}

	fmt.Fprintln(formatter.Writer, "✗ Replay diverged from recording")
	fmt.Fprintf(formatter.Writer, "  %s\n", replayErr.Error())
	return replayVerdict(replayErr)
}

// replayVerdict maps a replay failure onto the command's exit code.
func replayVerdict(err error) error {
	if err == nil {
		return nil
	}

	var div *trace.DivergenceError
	var mismatch *trace.HashMismatchError
	if errors.As(err, &div) || errors.As(err, &mismatch) {
		return WrapExitError(ExitFailure, "trace is not deterministic", err)
	}
	return WrapExitError(ExitCommandError, "replay failed", err)
}
