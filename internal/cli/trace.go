package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/actionbus/internal/ir"
	"github.com/roach88/actionbus/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Workflow string // optional - filter run listing to a workflow
	Action   string // optional - filter timeline to a specific action
}

// TraceResult holds the complete trace output of one run.
type TraceResult struct {
	Run       store.RunSummary      `json:"run"`
	Timeline  []ir.TraceEntry       `json:"timeline"`
	Log       ir.LogSnapshot        `json:"log"`
	Rollbacks []store.RollbackEntry `json:"rollbacks"`
	Stats     TraceStats            `json:"stats"`
	Verified  bool                  `json:"verified"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEntries int `json:"total_entries"`
	Dispatches   int `json:"dispatches"`
	Completions  int `json:"completions"`
	Suspensions  int `json:"suspensions"`
	Events       int `json:"events"`
	Rollbacks    int `json:"rollbacks"`
}

// RunList holds the stored runs.
type RunList struct {
	Runs []store.RunSummary `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show the trace of a stored run",
		Long: `Show the trace of a run stored by "actionbus run --db".

The output includes:
- Timeline: dispatch, suspend, resume, complete, event and rollback steps
  in logical sequence order
- Logs: the action, main, repeated, event and retries logs
- Rollbacks: actions rolled back when the run failed
- Stats: summary counts, and whether the stored digest still matches

Without a run id, lists the stored runs in start order.

Examples:
  actionbus trace --db ./runs.db
  actionbus trace --db ./runs.db --workflow checkout
  actionbus trace 0190f5c2-7d1e-7c4a-9b9f-0d4c3e1a2b3c --db ./runs.db
  actionbus trace 0190f5c2-7d1e-7c4a-9b9f-0d4c3e1a2b3c --db ./runs.db --action order.charge --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "list only runs of this workflow")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter timeline to a specific action")

	return cmd
}

// openExisting opens a database that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(commandContext(cmd), opts.Workflow)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: RunList{Runs: runs}})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%4d  %s  %-9s  %s\n", r.StartedSeq, r.ID, r.Status, r.Workflow)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := st.ReadSummary(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		if opts.Format == "json" {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			_ = formatter.Error("E005", fmt.Sprintf("run not found: %s", runID), nil)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "No run found: %s\n", runID)
		}
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	rec, err := st.ReadRun(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	rollbacks, err := st.ReadRollbacks(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rollbacks", err)
	}

	verified := true
	var mismatch *store.DigestMismatchError
	if err := st.VerifyRun(ctx, runID); errors.As(err, &mismatch) {
		verified = false
	} else if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify run", err)
	}

	result := TraceResult{
		Run:       summary,
		Timeline:  buildTimeline(rec.Trace, opts.Action),
		Log:       rec.Log,
		Rollbacks: rollbacks,
		Stats:     buildStats(rec.Trace),
		Verified:  verified,
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// buildTimeline filters the trace to one action. Event entries are kept
// when filtering so the cause of listener dispatches stays visible.
func buildTimeline(trace []ir.TraceEntry, actionFilter string) []ir.TraceEntry {
	timeline := []ir.TraceEntry{}
	for _, e := range trace {
		if actionFilter != "" && e.ActionID != actionFilter && e.Kind != ir.TraceEvent {
			continue
		}
		timeline = append(timeline, e)
	}
	return timeline
}

func buildStats(trace []ir.TraceEntry) TraceStats {
	stats := TraceStats{TotalEntries: len(trace)}
	for _, e := range trace {
		switch e.Kind {
		case ir.TraceDispatch:
			stats.Dispatches++
		case ir.TraceComplete:
			stats.Completions++
		case ir.TraceSuspend:
			stats.Suspensions++
		case ir.TraceEvent:
			stats.Events++
		case ir.TraceRollback:
			stats.Rollbacks++
		}
	}
	return stats
}

func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  result.Run.ID,
	})
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Workflow: %s\n", result.Run.Workflow)
	fmt.Fprintf(w, "Status: %s\n", result.Run.Status)
	if result.Run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Run.Error)
	}
	fmt.Fprintf(w, "Digest: %s (%s)\n", truncateDigest(result.Run.Digest), verifiedStatus(result.Verified))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Timeline:")
	for _, e := range result.Timeline {
		formatTimelineEntry(w, e)
	}

	if len(result.Rollbacks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Rolled back:")
		for _, rb := range result.Rollbacks {
			fmt.Fprintf(w, "  [%d] %s (%s)\n", rb.Seq, rb.ActionID, rb.Status)
		}
	}

	if verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Logs:")
		fmt.Fprintf(w, "  action:   %s\n", strings.Join(result.Log.ActionLog, ", "))
		fmt.Fprintf(w, "  main:     %s\n", strings.Join(result.Log.MainLog, ", "))
		fmt.Fprintf(w, "  repeated: %s\n", strings.Join(result.Log.RepeatedLog, ", "))
		fmt.Fprintf(w, "  event:    %s\n", strings.Join(result.Log.EventLog, ", "))
		fmt.Fprintf(w, "  retries:  %s\n", strings.Join(result.Log.RetriesLog, ", "))
	}

	s := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d entries, %d dispatches, %d completions, %d suspensions, %d events, %d rollbacks\n",
		s.TotalEntries, s.Dispatches, s.Completions, s.Suspensions, s.Events, s.Rollbacks)
	return nil
}

func formatTimelineEntry(w io.Writer, e ir.TraceEntry) {
	switch {
	case e.Kind == ir.TraceEvent:
		fmt.Fprintf(w, "  [%d] %-8s %s\n", e.Seq, e.Kind, e.EventID)
	case e.Status != "":
		fmt.Fprintf(w, "  [%d] %-8s %s → %s\n", e.Seq, e.Kind, e.ActionID, e.Status)
	default:
		fmt.Fprintf(w, "  [%d] %-8s %s\n", e.Seq, e.Kind, e.ActionID)
	}
}

// truncateDigest shortens a digest for display.
func truncateDigest(d string) string {
	if len(d) > 16 {
		return d[:16] + "..."
	}
	return d
}

func verifiedStatus(ok bool) string {
	if ok {
		return "verified"
	}
	return "MISMATCH"
}
