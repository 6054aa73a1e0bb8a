package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidationSummary is the JSON payload for a valid table.
type ValidationSummary struct {
	Valid bool   `json:"valid"`
	Flags int    `json:"flags"`
	Rules int    `json:"rules"`
	Hash  string `json:"hash"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <table.cue>",
		Short: "Validate a CUE rule table without emitting output",
		Long: `Validate a CUE rule table.

Parses the source and runs the full semantic checks: flag domains, enum
defaults, int bounds, rule predicates against the declared flag universe,
effect targets, and durations. Reports every violation with its stable
error code rather than stopping at the first.

Exit codes:
  0 - Table is valid
  1 - Table is invalid (parse or validation errors)
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, tablePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tbl, src, err := loadTable(tablePath)
	if err != nil {
		return reportTableErrors(formatter, err)
	}

	summary := ValidationSummary{
		Valid: true,
		Flags: len(src.Flags),
		Rules: tbl.Len(),
		Hash:  tbl.Hash(),
	}

	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is valid: %d flag(s), %d rule(s)\n", tablePath, summary.Flags, summary.Rules)
	formatter.VerboseLog("Table hash: %s", summary.Hash)
	return nil
}
