package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veneer-dev/veneer/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Element  string // optional - filter to one element
	Kind     string // optional - filter to one event kind
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	TableHash string        `json:"table_hash"`
	Events    []trace.Event `json:"events"`
	Stats     TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Inputs      int `json:"inputs"`
	Outputs     int `json:"outputs"`
	Rejections  int `json:"rejections"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Dump a recorded presentation trace",
		Long: `Dump the events of a recorded trace database in seq order.

Each event is either a pipeline input (observe, set, reject, complete,
drop) or a pipeline output (apply, remove, start, cancel). The inputs are
what the replay command re-feeds; the outputs are what it verifies.

Examples:
  veneer trace --db trace.db
  veneer trace --db trace.db --element tab-1
  veneer trace --db trace.db --kind reject --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Element, "element", "", "filter to one element ID")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")

	return cmd
}

func runTraceDump(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := context.Background()

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	var events []trace.Event
	if opts.Element != "" {
		events, err = st.EventsFor(ctx, opts.Element)
	} else {
		events, err = st.Events(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if opts.Kind != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.Kind) == opts.Kind {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	hash, err := st.TableHash(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read table hash", err)
	}

	result := TraceResult{
		TableHash: hash,
		Events:    events,
		Stats:     computeTraceStats(events),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if len(events) == 0 {
		fmt.Fprintln(formatter.Writer, "No events found.")
		return nil
	}

	fmt.Fprintf(formatter.Writer, "Table hash: %s\n", result.TableHash)
	fmt.Fprintf(formatter.Writer, "%d event(s): %d input(s), %d output(s), %d rejection(s)\n\n",
		result.Stats.TotalEvents, result.Stats.Inputs, result.Stats.Outputs, result.Stats.Rejections)

	for _, ev := range events {
		fmt.Fprintf(formatter.Writer, "%s\n", formatTraceEvent(ev))
	}

	return nil
}

// computeTraceStats summarizes a trace.
func computeTraceStats(events []trace.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	for _, ev := range events {
		if ev.Input() {
			stats.Inputs++
		} else {
			stats.Outputs++
		}
		if ev.Kind == trace.KindReject {
			stats.Rejections++
		}
	}
	return stats
}

// formatTraceEvent renders one event as a human-readable timeline line.
func formatTraceEvent(ev trace.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%6d] %-8s %s", ev.Seq, ev.Kind, ev.Element)

	switch ev.Kind {
	case trace.KindSet:
		fmt.Fprintf(&b, " %s=%s", ev.Flag, ev.Value)
	case trace.KindReject:
		fmt.Fprintf(&b, " %s=%q (%s)", ev.Flag, ev.Value, ev.Reason)
	case trace.KindApply, trace.KindRemove:
		fmt.Fprintf(&b, " %s=%s", ev.Property, ev.Value)
		if ev.Channel != ev.Property {
			fmt.Fprintf(&b, " [%s]", ev.Channel)
		}
	case trace.KindStart:
		fmt.Fprintf(&b, " %s (%s)", ev.Transition, ev.TransitionID)
		if ev.Progress > 0 {
			fmt.Fprintf(&b, " from %.2f", ev.Progress)
		}
	case trace.KindCancel, trace.KindComplete:
		fmt.Fprintf(&b, " %s (%s)", ev.Transition, ev.TransitionID)
	}

	return b.String()
}
