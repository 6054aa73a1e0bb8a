package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/veneer-dev/veneer/internal/bridge"
	"github.com/veneer-dev/veneer/internal/engine"
	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Table         string
	Database      string
	ReducedMotion bool
}

// inputEvent is one JSON line on stdin.
type inputEvent struct {
	Type         string `json:"type"` // observe | set | remove | complete
	Element      string `json:"element"`
	Flag         string `json:"flag,omitempty"`
	Value        string `json:"value,omitempty"`
	Channel      string `json:"channel,omitempty"`
	TransitionID string `json:"transition_id,omitempty"`
}

// outputEvent is one JSON line on stdout: an outbound presentation call.
type outputEvent struct {
	Op           string  `json:"op"` // apply | remove | start | cancel
	Element      string  `json:"element"`
	Property     string  `json:"property,omitempty"`
	Value        string  `json:"value,omitempty"`
	Transition   string  `json:"transition,omitempty"`
	TransitionID string  `json:"transition_id,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	Easing       string  `json:"easing,omitempty"`
	StartFrom    float64 `json:"start_from,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline over JSON-lines host events on stdin",
		Long: `Run the presentation pipeline.

Reads host events as JSON lines from stdin, one object per line:

  {"type": "observe", "element": "tab-1"}
  {"type": "set", "element": "tab-1", "flag": "selected", "value": "true"}
  {"type": "complete", "element": "tab-1", "channel": "pulse"}
  {"type": "remove", "element": "tab-1"}

Outbound presentation calls (apply, remove, start, cancel) are written as
JSON lines to stdout. Every event is recorded to the SQLite trace database
for later inspection and replay. If the database already holds a trace for
the same table, the sequence clock resumes where it left off.

Examples:
  veneer run --table chrome.cue --db trace.db < events.jsonl
  tail -f events.jsonl | veneer run --table chrome.cue --db trace.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "path to CUE rule table (required)")
	_ = cmd.MarkFlagRequired("table")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.ReducedMotion, "reduced-motion", false, "complete transitions synchronously with zero duration")

	return cmd
}

func runRun(opts *RunOptions, cmd *cobra.Command) error {
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

	ctx := context.Background()

	// A reopened database continues its trace; seq stays strictly increasing
	// across sessions.
	lastSeq, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace database", err)
	}
	if hash, err := st.TableHash(ctx); err == nil && hash != "" && hash != tbl.Hash() {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("trace database was recorded with table %s, current table is %s", hash, tbl.Hash()))
	}

	applier := &emitApplier{w: cmd.OutOrStdout()}
	b := bridge.New(tbl, applier,
		bridge.WithRecorder(st),
		bridge.WithClock(engine.NewSeqClockAt(lastSeq)),
		bridge.WithReducedMotion(opts.ReducedMotion),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(runCtx) }()

	fed, dropped := feedEvents(cmd.InOrStdin(), b, formatter)

	// EOF on stdin ends the session; drain the queue and stop.
	b.Stop()
	if err := <-done; err != nil && err != context.Canceled {
		return WrapExitError(ExitCommandError, "pipeline stopped", err)
	}

	formatter.VerboseLog("Processed %d event(s), %d malformed line(s) dropped", fed, dropped)
	return nil
}

// feedEvents parses stdin lines into bridge events. Malformed lines are
// logged and skipped; a bad line must not kill a long-running session.
func feedEvents(r io.Reader, b *bridge.Bridge, formatter *OutputFormatter) (fed, dropped int) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var in inputEvent
		if err := json.Unmarshal(line, &in); err != nil {
			formatter.VerboseLog("dropping malformed line: %v", err)
			dropped++
			continue
		}

		ev, err := translateInput(in)
		if err != nil {
			formatter.VerboseLog("dropping event: %v", err)
			dropped++
			continue
		}

		if !b.Enqueue(ev) {
			return fed, dropped
		}
		fed++
	}
	return fed, dropped
}

// translateInput maps a stdin event onto the bridge's inbound surface.
func translateInput(in inputEvent) (bridge.Event, error) {
	switch in.Type {
	case "observe":
		return bridge.Event{Type: bridge.EventObserve, Element: in.Element}, nil
	case "set":
		return bridge.Event{Type: bridge.EventAttribute, Element: in.Element, Flag: in.Flag, Raw: in.Value}, nil
	case "remove":
		return bridge.Event{Type: bridge.EventRemoval, Element: in.Element}, nil
	case "complete":
		if in.TransitionID != "" {
			return bridge.Event{Type: bridge.EventCompletion, Element: in.Element, TransitionID: in.TransitionID}, nil
		}
		if in.Channel != "" {
			return bridge.Event{Type: bridge.EventChannelCompletion, Element: in.Element, Channel: in.Channel}, nil
		}
		return bridge.Event{}, fmt.Errorf("complete event needs transition_id or channel")
	default:
		return bridge.Event{}, fmt.Errorf("unknown event type %q", in.Type)
	}
}

// emitApplier writes outbound presentation calls as JSON lines. This is the
// CLI's stand-in for a host UI adapter.
type emitApplier struct {
	w io.Writer
}

func (a *emitApplier) emit(ev outputEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintln(a.w, string(data))
}

func (a *emitApplier) ApplyEffect(elementID string, eff ir.StaticEffect) {
	a.emit(outputEvent{Op: "apply", Element: elementID, Property: eff.Property, Value: eff.Value})
}

func (a *emitApplier) RemoveEffect(elementID string, eff ir.StaticEffect) {
	a.emit(outputEvent{Op: "remove", Element: elementID, Property: eff.Property})
}

func (a *emitApplier) StartTransition(elementID string, desc engine.TransitionDescriptor) {
	a.emit(outputEvent{
		Op:           "start",
		Element:      elementID,
		Transition:   desc.Name,
		TransitionID: desc.ID,
		DurationMS:   desc.Duration.Milliseconds(),
		Easing:       desc.Easing,
		StartFrom:    desc.StartFrom,
	})
}

func (a *emitApplier) CancelTransition(elementID string, transitionID string) {
	a.emit(outputEvent{Op: "cancel", Element: elementID, TransitionID: transitionID})
}
