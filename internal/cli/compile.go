package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/table"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// TableDocument is the JSON form of a compiled rule table: the flag
// universe, the rules with materialized priorities, and the content hash
// traces are stamped with.
type TableDocument struct {
	Hash  string    `json:"hash"`
	Flags []FlagDoc `json:"flags"`
	Rules []RuleDoc `json:"rules"`
}

// FlagDoc describes one declared flag.
type FlagDoc struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Symbols []string `json:"symbols,omitempty"`
	Default string   `json:"default"`
	Min     int64    `json:"min,omitempty"`
	Max     int64    `json:"max,omitempty"`
}

// RuleDoc describes one compiled rule.
type RuleDoc struct {
	ID       string      `json:"id"`
	Priority int         `json:"priority"`
	Explicit bool        `json:"explicit_priority"`
	Tests    []TestDoc   `json:"tests"`
	Effects  []EffectDoc `json:"effects"`
}

// TestDoc describes one predicate flag test.
type TestDoc struct {
	Flag  string `json:"flag"`
	Op    string `json:"op"`
	Value string `json:"value"`
	Root  bool   `json:"root,omitempty"`
}

// EffectDoc describes one effect, static or transition.
type EffectDoc struct {
	Kind       string `json:"kind"` // "static" or "transition"
	Property   string `json:"property,omitempty"`
	Value      string `json:"value,omitempty"`
	Transition string `json:"transition,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Easing     string `json:"easing,omitempty"`
	Trigger    string `json:"trigger,omitempty"`
	Channel    string `json:"channel"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <table.cue>",
		Short: "Compile a CUE rule table to JSON",
		Long: `Compile a CUE rule table to its canonical JSON form.

The compiler parses the CUE source, validates flag declarations and rules,
derives priorities from predicate specificity where none are declared, and
outputs the compiled table together with its content hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, tablePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	tbl, src, err := loadTable(tablePath)
	if err != nil {
		return reportTableErrors(formatter, err)
	}

	formatter.VerboseLog("Compiled %d flag(s), %d rule(s) from %s", len(src.Flags), tbl.Len(), tablePath)

	doc := buildTableDocument(tbl, src.Flags)

	if opts.Output != "" {
		if err := writeTableToFile(doc, opts.Output); err != nil {
			_ = formatter.Error("write", err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, doc, opts.Output)
}

// buildTableDocument projects a compiled table into its JSON form.
// Rules come from the table, not the source, so derived priorities show up.
func buildTableDocument(tbl *table.Table, flags []ir.FlagDecl) *TableDocument {
	doc := &TableDocument{Hash: tbl.Hash()}

	for _, d := range flags {
		doc.Flags = append(doc.Flags, FlagDoc{
			Name:    d.Name,
			Kind:    d.Kind.String(),
			Symbols: d.Symbols,
			Default: d.Default().String(),
			Min:     d.Min,
			Max:     d.Max,
		})
	}

	for _, r := range tbl.Rules() {
		rd := RuleDoc{
			ID:       r.ID,
			Priority: r.Priority,
			Explicit: r.HasPriority,
		}
		for _, t := range r.Predicate {
			rd.Tests = append(rd.Tests, TestDoc{
				Flag:  t.Flag,
				Op:    t.Op.String(),
				Value: t.Value.String(),
				Root:  t.Root,
			})
		}
		for _, e := range r.Effects {
			switch eff := e.(type) {
			case ir.StaticEffect:
				rd.Effects = append(rd.Effects, EffectDoc{
					Kind:     "static",
					Property: eff.Property,
					Value:    eff.Value,
					Channel:  eff.Channel(),
				})
			case ir.TransitionEffect:
				rd.Effects = append(rd.Effects, EffectDoc{
					Kind:       "transition",
					Transition: eff.Name,
					DurationMS: eff.Duration.Milliseconds(),
					Easing:     eff.Easing,
					Trigger:    eff.Trigger.String(),
					Channel:    eff.Channel(),
				})
			}
		}
		doc.Rules = append(doc.Rules, rd)
	}

	return doc
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, doc *TableDocument, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(doc)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d flag(s), %d rule(s)\n", len(doc.Flags), len(doc.Rules))
	fmt.Fprintf(formatter.Writer, "Table hash: %s\n\n", doc.Hash)

	fmt.Fprintln(formatter.Writer, "Rules:")
	for _, r := range doc.Rules {
		origin := "derived"
		if r.Explicit {
			origin = "explicit"
		}
		fmt.Fprintf(formatter.Writer, "  %s: %d test(s), %d effect(s), priority %d (%s)\n",
			r.ID, len(r.Tests), len(r.Effects), r.Priority, origin)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote compiled table to %s\n", outputFile)
	}

	return nil
}

// writeTableToFile writes the compiled table document as indented JSON.
func writeTableToFile(doc *TableDocument, filename string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling table: %w", err)
	}

	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
