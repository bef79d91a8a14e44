package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"facette.io/natsort"
	"github.com/spf13/cobra"

	"github.com/roach88/actionbus/internal/engine"
	"github.com/roach88/actionbus/internal/ir"
	"github.com/roach88/actionbus/internal/store"
	"github.com/roach88/actionbus/internal/workflow"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string
	Events   []string

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunOutput is the outcome of a run.
type RunOutput struct {
	RunID     string               `json:"run_id"`
	Workflow  string               `json:"workflow"`
	Status    ir.RunStatus         `json:"status"`
	ErrorCode string               `json:"error_code,omitempty"`
	Error     string               `json:"error,omitempty"`
	Digest    string               `json:"digest"`
	ActionLog []string             `json:"action_log"`
	EventLog  []string             `json:"event_log"`
	Results   map[string]ir.Result `json:"results"`
	Stored    bool                 `json:"stored"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <workflow-dir>",
		Short: "Run a workflow on the bus",
		Long: `Run a CUE workflow on the action bus.

The workflow's run directives are executed after the events given with
--event are dispatched. Externally visible results are printed when the
run finishes. With --db the run, its logs and its trace are stored in a
SQLite database (created if it doesn't exist) for the trace command.

The workflow's config block can be overridden with a YAML file:

  allow_circular_call: true
  log_max_size: 50
  enabled_validation: false

Exit codes:
  0 - Run completed
  1 - Run failed (results were rolled back)
  2 - Command error (invalid workflow, database error, etc.)

Examples:
  actionbus run ./workflows/checkout
  actionbus run ./workflows/checkout --event order.placed --db ./runs.db
  actionbus run ./workflows/checkout --config ./bus.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to store the run in")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML bus config")
	cmd.Flags().StringArrayVar(&opts.Events, "event", nil, "event to dispatch before the run (repeatable)")

	return cmd
}

func runWorkflow(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.RootOptions)

	loaded, err := LoadWorkflow(dir)
	if err != nil {
		code, message := loadErrorCode(err)
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, "failed to load workflow", err)
	}
	if !loaded.Valid() {
		first := loaded.Errors[0]
		_ = formatter.Error(first.Code, first.Message, loaded.Errors)
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid workflow: %d error(s)", len(loaded.Errors)))
	}
	w := loaded.Workflow
	for _, c := range loaded.Cycles {
		if c.Level == "warning" {
			logger.Warn("potential circular call", "path", c.Path)
		}
	}

	cfg := workflow.Config(w)
	if opts.Config != "" {
		if err := loadConfig(opts.Config, &cfg); err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	runIDs := opts.RunIDGenerator
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	b, err := workflow.NewBuilder(w, cfg, logger, engine.WithRunIDGenerator(runIDs))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to assemble workflow", err)
	}
	bus, err := b.Build()
	if err != nil {
		code, _ := engine.CodeOf(err)
		_ = formatter.Error(string(code), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build bus", err)
	}

	for _, id := range opts.Events {
		if err := bus.DispatchEvent(engine.Event{ID: id}); err != nil {
			code, _ := engine.CodeOf(err)
			_ = formatter.Error(string(code), err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to dispatch event", err)
		}
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	logger.Info("running workflow", "workflow", w.Name, "dir", dir)
	runErr := bus.Run(ctx)

	out := newRunOutput(w, bus, runErr)
	if opts.Database != "" {
		if err := storeRun(ctx, opts.Database, out, bus, logger); err != nil {
			return err
		}
		out.Stored = true
	}

	if runErr != nil {
		if formatter.Format == "json" {
			_ = formatter.Error(out.ErrorCode, out.Error, out)
		} else {
			outputRunText(formatter, out)
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	if formatter.Format == "json" {
		return formatter.SuccessForRun(out.RunID, out)
	}
	outputRunText(formatter, out)
	return nil
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, func()) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

func newRunOutput(w *ir.Workflow, bus *engine.Bus, runErr error) RunOutput {
	snap := bus.Log()
	out := RunOutput{
		RunID:     bus.RunID(),
		Workflow:  w.Name,
		Status:    ir.RunStatusCompleted,
		Digest:    ir.MustLogDigest(snap),
		ActionLog: orEmpty(snap.ActionLog),
		EventLog:  orEmpty(snap.EventLog),
		Results:   make(map[string]ir.Result),
	}
	if runErr != nil {
		out.Status = ir.RunStatusFailed
		out.Error = runErr.Error()
		if code, ok := engine.CodeOf(runErr); ok {
			out.ErrorCode = string(code)
		}
	}
	for _, a := range w.Actions {
		if r, err := bus.GetResult(a.ID); err == nil {
			out.Results[a.ID] = r
		}
	}
	return out
}

func storeRun(ctx context.Context, path string, out RunOutput, bus *engine.Bus, logger *slog.Logger) error {
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// A cancelled run is still recorded.
	inserted, err := st.WriteRun(context.WithoutCancel(ctx), ir.RunRecord{
		ID:       out.RunID,
		Workflow: out.Workflow,
		Status:   out.Status,
		Error:    out.Error,
		Digest:   out.Digest,
		Log:      bus.Log(),
		Trace:    bus.Trace(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to store run", err)
	}
	if !inserted {
		logger.Warn("run already stored", "run_id", out.RunID)
	}
	logger.Debug("run stored", "run_id", out.RunID, "db", path)
	return nil
}

func outputRunText(formatter *OutputFormatter, out RunOutput) {
	w := formatter.Writer
	if out.Status == ir.RunStatusFailed {
		fmt.Fprintf(w, "✗ Run %s failed\n", out.RunID)
		fmt.Fprintf(w, "  Error [%s]: %s\n", out.ErrorCode, out.Error)
	} else {
		fmt.Fprintf(w, "✓ Run %s completed\n", out.RunID)
	}

	fmt.Fprintf(w, "  Workflow: %s\n", out.Workflow)
	fmt.Fprintf(w, "  Actions:  %d completed\n", len(out.ActionLog))
	fmt.Fprintf(w, "  Digest:   %s\n", out.Digest)

	ids := make([]string, 0, len(out.Results))
	for id := range out.Results {
		ids = append(ids, id)
	}
	natsort.Sort(ids)
	for _, id := range ids {
		r := out.Results[id]
		if r.Data != nil {
			fmt.Fprintf(w, "  %s: %s %v\n", id, r.Status, r.Data)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", id, r.Status)
		}
	}
	if out.Stored {
		fmt.Fprintf(w, "  Stored run %s\n", out.RunID)
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
