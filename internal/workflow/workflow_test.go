package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actionbus/internal/engine"
	"github.com/roach88/actionbus/internal/ir"
)

// build assembles w with test logging and a private metrics registry.
func build(t *testing.T, w *ir.Workflow) *engine.Bus {
	t.Helper()
	bus, err := Build(w, slogt.New(t),
		engine.WithRunIDGenerator(engine.NewSequenceGenerator("run")),
		engine.WithMetrics(engine.NewMetrics(prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	return bus
}

func workflow(actions ...ir.ActionDecl) *ir.Workflow {
	return &ir.Workflow{
		Name:    "test",
		Config:  ir.WorkflowConfig{LogMaxSize: ir.DefaultLogMaxSize, Validation: true},
		Actions: actions,
	}
}

func TestCatalogMatchesBuiltins(t *testing.T) {
	assert.ElementsMatch(t, ir.BuiltinHandlers, Handlers())
	assert.ElementsMatch(t, ir.BuiltinRollbacks, Rollbacks())
}

func TestConfig(t *testing.T) {
	w := workflow()
	w.Config = ir.WorkflowConfig{AllowCircularCall: true, LogMaxSize: 7, Validation: false}

	assert.Equal(t, engine.Config{AllowCircularCall: true, LogMaxSize: 7}, Config(w))
}

func TestBuild_EmitAndRequire(t *testing.T) {
	w := workflow(
		ir.ActionDecl{ID: "order.load", Handler: "emit", Data: map[string]any{"id": int64(1)}, External: true},
		ir.ActionDecl{ID: "order.charge", Handler: "noop", Require: []string{"order.load"}, External: true},
	)
	w.Run = []string{"order.charge"}
	bus := build(t, w)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("order.load")
	require.NoError(t, err)
	assert.Equal(t, ir.Success(map[string]any{"id": int64(1)}), res)
	assert.Equal(t, []string{"order.load", "order.charge"}, bus.Log().ActionLog)
}

func TestBuild_EmitCopiesData(t *testing.T) {
	data := map[string]any{"id": int64(1)}
	w := workflow(ir.ActionDecl{ID: "load", Handler: "emit", Data: data, External: true})
	w.Run = []string{"load"}
	bus := build(t, w)
	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("load")
	require.NoError(t, err)
	res.Data.(map[string]any)["id"] = int64(2)

	assert.Equal(t, int64(1), data["id"])
}

func TestBuild_FailSubscription(t *testing.T) {
	w := workflow(
		ir.ActionDecl{ID: "charge", Handler: "fail", Data: map[string]any{"reason": "declined"}, External: true},
		ir.ActionDecl{ID: "refund", Handler: "noop"},
		ir.ActionDecl{ID: "ship", Handler: "noop"},
	)
	w.Subscriptions = []ir.SubscriptionDecl{
		{Subject: "charge", Status: ir.StatusFail, Action: "refund"},
		{Subject: "charge", Status: ir.StatusSuccess, Action: "ship"},
	}
	w.Run = []string{"charge"}
	bus := build(t, w)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("charge")
	require.NoError(t, err)
	assert.Equal(t, ir.Fail(map[string]any{"reason": "declined"}), res)
	assert.Equal(t, []string{"charge.Fail", "refund.Success"}, bus.Log().MainLog)
}

func TestBuild_ErrorStatus(t *testing.T) {
	w := workflow(ir.ActionDecl{ID: "lookup", Handler: "error", External: true})
	w.Run = []string{"lookup"}
	bus := build(t, w)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("lookup")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusError, res.Status)
}

func TestBuild_PanicRollsBack(t *testing.T) {
	w := workflow(
		ir.ActionDecl{ID: "reserve", Handler: "noop", Rollback: "record"},
		ir.ActionDecl{ID: "boom", Handler: "panic"},
	)
	w.Triggers = []ir.TriggerDecl{{Subject: "reserve", Action: "boom"}}
	w.Run = []string{"reserve"}
	bus := build(t, w)

	err := bus.Run(context.Background())

	require.Error(t, err)
	assert.True(t, engine.IsCode(err, engine.ErrCodeHandlerFailed))
	var pe *engine.PanicError
	assert.True(t, errors.As(err, &pe))

	var rolledBack []string
	for _, e := range bus.Trace() {
		if e.Kind == ir.TraceRollback {
			rolledBack = append(rolledBack, e.ActionID)
		}
	}
	assert.Equal(t, []string{"reserve"}, rolledBack)
}

func TestBuild_SuspendReturnsResumeValue(t *testing.T) {
	w := workflow(ir.ActionDecl{ID: "wait", Handler: "suspend", Data: map[string]any{"ticket": "a1"}, External: true})
	w.Run = []string{"wait"}
	bus := build(t, w)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("wait")
	require.NoError(t, err)
	assert.Equal(t, ir.Success(map[string]any{"ticket": "a1"}), res)

	var kinds []ir.TraceKind
	for _, e := range bus.Trace() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []ir.TraceKind{ir.TraceDispatch, ir.TraceSuspend, ir.TraceResume, ir.TraceComplete}, kinds)
}

func TestBuild_DispatchRequestsListeners(t *testing.T) {
	w := workflow(
		ir.ActionDecl{ID: "notify", Handler: "dispatch", Event: "order.placed", Data: map[string]any{"id": int64(9)}},
		ir.ActionDecl{ID: "audit", Handler: "noop", Listen: "order.placed"},
		ir.ActionDecl{ID: "mail", Handler: "noop", Listen: "order.placed"},
	)
	w.Events = []ir.EventDecl{{ID: "order.placed"}}
	w.Run = []string{"notify"}
	bus := build(t, w)

	require.NoError(t, bus.Run(context.Background()))

	snap := bus.Log()
	assert.Equal(t, []string{"order.placed"}, snap.EventLog)
	assert.ElementsMatch(t, []string{"notify", "audit", "mail"}, snap.ActionLog)
}

func TestBuild_ExternalEvent(t *testing.T) {
	w := workflow(ir.ActionDecl{ID: "audit", Handler: "noop", Listen: "tick", External: true})
	w.Events = []ir.EventDecl{{ID: "tick", Data: map[string]any{"n": int64(1)}}}
	bus := build(t, w)

	require.NoError(t, bus.DispatchEvent(engine.Event{ID: "tick"}))
	require.NoError(t, bus.Run(context.Background()))

	assert.True(t, bus.ResultIsExists("audit"))
}

func TestBuild_Labels(t *testing.T) {
	a := action(ir.ActionDecl{ID: "charge", Handler: "noop", Rollback: "record"}, slogt.New(t))

	assert.Equal(t, map[string]string{"handler": "noop", "rollback": "record"}, a.Labels)
	assert.NotNil(t, a.Rollback)

	none := action(ir.ActionDecl{ID: "charge", Handler: "noop", Rollback: "none"}, slogt.New(t))
	assert.Nil(t, none.Rollback)
}

func TestBuild_DefaultContract(t *testing.T) {
	tests := []struct {
		name string
		decl ir.ActionDecl
		want ir.Contract
	}{
		{"emit with data", ir.ActionDecl{ID: "a", Handler: "emit", Data: map[string]any{"k": "v"}}, MapContract},
		{"emit without data", ir.ActionDecl{ID: "a", Handler: "emit"}, ""},
		{"dispatch with data", ir.ActionDecl{ID: "a", Handler: "dispatch", Event: "e", Data: map[string]any{"k": "v"}}, ""},
		{"explicit", ir.ActionDecl{ID: "a", Handler: "emit", Contract: "custom", Data: map[string]any{"k": "v"}}, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, action(tt.decl, slogt.New(t)).Contract)
		})
	}
}

func TestNewBuilder_InvalidWorkflow(t *testing.T) {
	w := workflow(ir.ActionDecl{ID: "a", Handler: "http"})
	w.Run = []string{"missing"}

	_, err := NewBuilder(w, Config(w), slogt.New(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "E104")
	assert.Contains(t, err.Error(), "E110")
}
