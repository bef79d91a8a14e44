package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/actionbus/internal/compiler"
	"github.com/roach88/actionbus/internal/engine"
	"github.com/roach88/actionbus/internal/ir"
	"github.com/roach88/actionbus/internal/store"
	"github.com/roach88/actionbus/internal/testutil"
	"github.com/roach88/actionbus/internal/workflow"
)

// Harness is the test execution engine.
// It runs scenarios on a real bus with a fixed run id and the bus's
// logical clock.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the bus and the workflow handlers.
// Default: a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the CUE workflow and apply config overrides
// 2. Build the bus (definition errors become the result's ErrorCode)
// 3. Dispatch the scenario events, then run the bus
// 4. Persist the run, read it back and verify its digest
// 5. Evaluate expectations and assertions against the stored run
//
// The returned error covers harness failures only: an unreadable
// workflow or a store error. A failing run is reported through the
// result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	w, err := compiler.LoadWorkflow(scenario.Workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	w.Config = scenario.Config.Apply(w.Config)

	result := NewResult()
	bus, runErr := h.build(w, scenario)
	if runErr == nil {
		runErr = dispatchEvents(bus, scenario.Events)
	}
	if runErr == nil {
		runErr = bus.Run(ctx)
	}
	if runErr != nil {
		result.ErrorCode = errorCode(runErr)
		result.Error = runErr.Error()
		h.logger.Debug("scenario run failed",
			"scenario", scenario.Name,
			"code", result.ErrorCode,
			"error", runErr,
		)
	}

	if bus != nil {
		if err := h.persist(ctx, st, w.Name, bus, runErr, result); err != nil {
			return nil, err
		}
		for _, a := range w.Actions {
			if r, gerr := bus.GetResult(a.ID); gerr == nil {
				result.Results[a.ID] = r
			}
		}
	}

	evaluateExpect(result, scenario.Expect)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// build assembles the bus for w with deterministic run ids and private
// metrics.
func (h *Harness) build(w *ir.Workflow, scenario *Scenario) (*engine.Bus, error) {
	b, err := workflow.NewBuilder(w, workflow.Config(w), h.logger,
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithMetrics(engine.NewMetrics(prometheus.NewRegistry())),
	)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

func dispatchEvents(bus *engine.Bus, events []EventStep) error {
	for _, ev := range events {
		var data any
		if ev.Data != nil {
			data = maps.Clone(ev.Data)
		}
		if err := bus.DispatchEvent(engine.Event{ID: ev.ID, Data: data}); err != nil {
			return err
		}
	}
	return nil
}

// persist writes the run to st and fills result from what was read back,
// so assertions see exactly what the store holds.
func (h *Harness) persist(ctx context.Context, st *store.Store, name string, bus *engine.Bus, runErr error, result *Result) error {
	rec := ir.RunRecord{
		ID:       bus.RunID(),
		Workflow: name,
		Status:   ir.RunStatusCompleted,
		Log:      bus.Log(),
		Trace:    bus.Trace(),
	}
	if rec.ID == "" {
		// Dispatch failed before the run started.
		return nil
	}
	if runErr != nil {
		rec.Status = ir.RunStatusFailed
		rec.Error = runErr.Error()
	}

	if _, err := st.WriteRun(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	if err := st.VerifyRun(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to verify run: %w", err)
	}
	stored, err := st.ReadRun(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to read run: %w", err)
	}

	result.RunID = stored.ID
	result.Log = stored.Log
	result.Trace = stored.Trace
	result.Digest = stored.Digest
	return nil
}

// errorCode returns the code carried by err: an engine code, a
// validation code or a load code.
func errorCode(err error) string {
	if code, ok := engine.CodeOf(err); ok {
		return string(code)
	}
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// evaluateExpect checks the run-level expectations.
func evaluateExpect(result *Result, expect Expect) {
	if result.ErrorCode != expect.ErrorCode {
		switch {
		case expect.ErrorCode == "":
			result.AddError(fmt.Sprintf("expected run to succeed, got %s: %s", result.ErrorCode, result.Error))
		case result.ErrorCode == "" && result.Error == "":
			result.AddError(fmt.Sprintf("expected error code %s, run succeeded", expect.ErrorCode))
		default:
			result.AddError(fmt.Sprintf("expected error code %s, got %q: %s", expect.ErrorCode, result.ErrorCode, result.Error))
		}
	}

	for _, id := range expect.ResultsExist {
		if _, ok := result.Results[id]; !ok {
			result.AddError(fmt.Sprintf("expected result of %s to exist", id))
		}
	}
	for _, id := range expect.ResultsAbsent {
		if _, ok := result.Results[id]; ok {
			result.AddError(fmt.Sprintf("expected no result for %s", id))
		}
	}

	if len(expect.Order) > 0 {
		if err := assertSubsequence(result.Log.ActionLog, expect.Order, result.Trace); err != nil {
			result.AddError(err.Error())
		}
	}

	if expect.LogDigest != "" && expect.LogDigest != result.Digest {
		result.AddError(fmt.Sprintf("expected log digest %s, got %s", expect.LogDigest, result.Digest))
	}
}
