package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actionbus/internal/ir"
)

func TestBus_Run_ExternalResult(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:             "greet",
		Handler:        returns(greeting{Text: "hello"}),
		Contract:       ContractOf[greeting](),
		ExternalAccess: true,
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("greet")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusSuccess, res.Status)
	assert.Equal(t, greeting{Text: "hello"}, res.Data)
	assert.True(t, bus.ResultIsExists("greet"))
	assert.Equal(t, StateTerminated, bus.State())
	assert.Equal(t, "run-1", bus.RunID())
}

func TestBus_Run_RequiredRunFirst(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: rec.handler, Required: []string{"B"}}))
	require.NoError(t, b.AddAction(Action{ID: "B", Handler: rec.handler}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, []string{"B", "A"}, rec.calls)
	assert.Equal(t, []string{"B", "A"}, bus.Log().ActionLog)
	assert.Equal(t, []string{"B.Success", "A.Success"}, bus.Log().MainLog)
}

func TestBus_Run_RequiredResultsVisible(t *testing.T) {
	var seen ir.Result
	var ok bool
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{
		ID:       "load",
		Handler:  returns(invoice{Total: 42}),
		Contract: ContractOf[invoice](),
	}))
	require.NoError(t, b.DoAction(Action{
		ID:       "charge",
		Required: []string{"load"},
		Handler: func(ctx *ActionContext) (any, error) {
			seen, ok = ctx.Result("load")
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	require.True(t, ok)
	assert.Equal(t, ir.Success(invoice{Total: 42}), seen)
}

func TestBus_Run_SubscriptionByStatus(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: fails}))
	require.NoError(t, b.AddAction(Action{ID: "onFail", Handler: rec.handler}))
	require.NoError(t, b.AddAction(Action{ID: "onSuccess", Handler: rec.handler}))
	require.NoError(t, b.AddAction(Action{ID: "always", Handler: rec.handler}))
	require.NoError(t, b.AddSubscription(Subscription{SubjectID: "A", Status: ir.StatusFail, ActionID: "onFail"}))
	require.NoError(t, b.AddSubscription(Subscription{SubjectID: "A", Status: ir.StatusSuccess, ActionID: "onSuccess"}))
	require.NoError(t, b.AddTrigger(Trigger{SubjectID: "A", ActionID: "always"}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, []string{"onFail", "always"}, rec.calls)
}

func TestBus_Run_NonRepeatableRunsOnce(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: rec.handler}))
	require.NoError(t, b.DoAction(Action{ID: "B", Handler: rec.handler}))
	require.NoError(t, b.AddAction(Action{ID: "C", Handler: rec.handler}))
	require.NoError(t, b.AddTrigger(Trigger{SubjectID: "A", ActionID: "C"}))
	require.NoError(t, b.AddTrigger(Trigger{SubjectID: "B", ActionID: "C"}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, []string{"A", "B", "C"}, rec.calls)
}

func TestBus_Run_SealedRequirementPulledIn(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "secret", Handler: rec.handler, Sealed: []string{"owner"}}))
	require.NoError(t, b.DoAction(Action{ID: "owner", Handler: rec.handler, Required: []string{"secret"}}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, []string{"secret", "owner"}, rec.calls)
}

func TestBus_Run_CircularCall(t *testing.T) {
	calls := 0
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:         "loop",
		Repeatable: true,
		Handler: func(*ActionContext) (any, error) {
			calls++
			return nil, nil
		},
	}))
	require.NoError(t, b.AddTrigger(Trigger{SubjectID: "loop", ActionID: "loop"}))
	bus := mustBuild(t, b)

	err := bus.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsCircularCallError(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateFailed, bus.State())

	log := bus.Log()
	assert.Equal(t, []string{"loop.Success"}, log.MainLog)
	assert.Equal(t, []string{"loop.Success"}, log.RepeatedLog)
	assert.Equal(t, []string{"loop.Success"}, log.RetriesLog)
	assert.Equal(t, []string{"loop", "loop"}, log.ActionLog)
}

func TestBus_Run_RetryBudget(t *testing.T) {
	calls := 0
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:         "poll",
		Repeatable: true,
		Retries:    2,
		Handler: func(*ActionContext) (any, error) {
			calls++
			return nil, nil
		},
	}))
	require.NoError(t, b.AddTrigger(Trigger{SubjectID: "poll", ActionID: "poll"}))
	bus := mustBuild(t, b)

	err := bus.Run(context.Background())

	assert.True(t, IsCircularCallError(err))
	assert.Equal(t, 4, calls, "first completion plus two budgeted repeats plus the circular one")
	assert.Len(t, bus.Log().MainLog, 3)
	assert.Equal(t, []string{"poll.Success"}, bus.Log().RepeatedLog)
}

func TestBus_Run_AllowCircularCallBoundsLogs(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.AllowCircularCall = true
	cfg.LogMaxSize = 3

	calls := 0
	b := NewBuilder(cfg, WithLogger(slogt.New(t)), WithMetrics(m))
	require.NoError(t, b.DoAction(Action{
		ID:         "tick",
		Repeatable: true,
		Handler: func(*ActionContext) (any, error) {
			calls++
			if calls < 10 {
				return nil, nil
			}
			return ir.Fail(nil), nil
		},
	}))
	require.NoError(t, b.AddSubscription(Subscription{SubjectID: "tick", Status: ir.StatusSuccess, ActionID: "tick"}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	log := bus.Log()
	assert.Equal(t, 10, calls)
	assert.Equal(t, []string{"tick", "tick", "tick"}, log.ActionLog)
	assert.Equal(t, []string{"tick.Success", "tick.Fail"}, log.MainLog)
	assert.Len(t, log.RepeatedLog, 3)
	assert.Equal(t, float64(8), testutil.ToFloat64(m.circularCalls))
}

func TestBus_Run_AllowCircularCallBoundsTrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowCircularCall = true
	cfg.LogMaxSize = 3

	b := newTestBuilder(t, cfg)
	require.NoError(t, b.DoAction(Action{ID: "tick", Handler: noop, Repeatable: true}))
	ticks := 1
	b.AddHook(MainAfterHook(func(s *StateService) error {
		if ticks == 25 {
			return nil
		}
		ticks++
		return s.DoExistsAction("tick")
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	trace := bus.Trace()
	require.Len(t, trace, 3, "trace is bounded like the logs")
	assert.Equal(t, int64(50), trace[2].Seq, "newest entries are kept")
	for i := 1; i < len(trace); i++ {
		assert.Equal(t, trace[i-1].Seq+1, trace[i].Seq)
	}
	assert.Equal(t, ir.TraceComplete, trace[2].Kind)
	assert.Len(t, bus.Log().ActionLog, 3)

	bus.Reset()
	assert.Empty(t, bus.Trace())
}

func TestBus_Run_TraceUnboundedByDefault(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "tick", Handler: noop, Repeatable: true, Retries: 10}))
	ticks := 1
	b.AddHook(MainAfterHook(func(s *StateService) error {
		if ticks == 5 {
			return nil
		}
		ticks++
		return s.DoExistsAction("tick")
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	trace := bus.Trace()
	require.Len(t, trace, 10)
	assert.Equal(t, int64(1), trace[0].Seq)
	assert.Equal(t, int64(10), trace[9].Seq)
}

func TestBus_Run_LockSkipsOutstanding(t *testing.T) {
	tests := []struct {
		name  string
		lock  bool
		calls int
	}{
		{name: "locked", lock: true, calls: 1},
		{name: "unlocked", lock: false, calls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			b := newTestBuilder(t, DefaultConfig())
			b.AddEvent(Event{ID: "tick"})
			require.NoError(t, b.AddAction(Action{
				ID:         "worker",
				Listen:     "tick",
				Repeatable: true,
				Lock:       tt.lock,
				Retries:    1,
				Handler: func(*ActionContext) (any, error) {
					calls++
					return nil, nil
				},
			}))
			b.AddHook(MainBeginHook(func(s *StateService) error {
				if err := s.DispatchEvent(Event{ID: "tick"}); err != nil {
					return err
				}
				return s.DispatchEvent(Event{ID: "tick"})
			}))
			bus := mustBuild(t, b)

			require.NoError(t, bus.Run(context.Background()))

			assert.Equal(t, tt.calls, calls)
			assert.Equal(t, []string{"tick", "tick"}, bus.Log().EventLog)
		})
	}
}

func TestBus_Run_ResultValidation(t *testing.T) {
	tests := []struct {
		name     string
		contract ir.Contract
		data     any
		disabled bool
		wantCode ErrorCode
	}{
		{name: "no contract, no data"},
		{name: "no contract, object", data: greeting{}, wantCode: ErrCodeReturnValueExists},
		{name: "no contract, scalar", data: "text", wantCode: ErrCodeReturnValueNotObject},
		{name: "contract, no data", contract: ContractOf[greeting](), wantCode: ErrCodeDataNotReceived},
		{name: "contract, scalar", contract: ContractOf[greeting](), data: "text", wantCode: ErrCodeReturnValueNotObject},
		{name: "contract, wrong type", contract: ContractOf[greeting](), data: invoice{}, wantCode: ErrCodeIncompatibleContract},
		{name: "contract, fail without data", contract: ContractOf[greeting](), data: ir.Fail(nil)},
		{name: "contract, matching pointer", contract: ContractOf[*greeting](), data: &greeting{}},
		{name: "validation disabled", data: greeting{}, disabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.EnabledValidation = !tt.disabled
			b := newTestBuilder(t, cfg)
			require.NoError(t, b.DoAction(Action{
				ID:       "A",
				Handler:  returns(tt.data),
				Contract: tt.contract,
			}))
			bus := mustBuild(t, b)

			err := bus.Run(context.Background())

			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestBus_Run_InvalidResultStatus(t *testing.T) {
	for _, validation := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.EnabledValidation = validation
		b := newTestBuilder(t, cfg)
		require.NoError(t, b.DoAction(Action{
			ID:             "A",
			Handler:        returns(ir.Result{Status: "Pending"}),
			ExternalAccess: true,
		}))
		rec := &recorder{}
		require.NoError(t, b.AddAction(Action{ID: "B", Handler: rec.handler}))
		require.NoError(t, b.AddTrigger(Trigger{SubjectID: "A", ActionID: "B"}))
		bus := mustBuild(t, b)

		err := bus.Run(context.Background())

		require.Error(t, err)
		assert.True(t, IsCode(err, ErrCodeHandlerFailed), "got %v", err)
		assert.ErrorContains(t, err, `invalid result status "Pending"`)
		assert.False(t, bus.ResultIsExists("A"), "invalid result is not stored")
		assert.Empty(t, rec.calls, "no fan-out on an invalid status")
		assert.Empty(t, bus.Log().MainLog)
	}
}

func TestBus_GetResult(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "public", Handler: noop, ExternalAccess: true}))
	require.NoError(t, b.DoAction(Action{ID: "internal", Handler: noop}))
	require.NoError(t, b.AddAction(Action{ID: "idle", Handler: noop, ExternalAccess: true}))
	bus := mustBuild(t, b)
	require.NoError(t, bus.Run(context.Background()))

	_, err := bus.GetResult("public")
	assert.NoError(t, err)

	_, err = bus.GetResult("internal")
	assert.True(t, IsCode(err, ErrCodeResultNotExists))
	assert.False(t, bus.ResultIsExists("internal"))

	_, err = bus.GetResult("idle")
	assert.True(t, IsCode(err, ErrCodeResultNotExists), "never ran")

	_, err = bus.GetResult("missing")
	assert.True(t, IsCode(err, ErrCodeActionNotDefined))
}

func TestBus_Run_ErrorResult(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:             "A",
		ExternalAccess: true,
		Handler: func(*ActionContext) (any, error) {
			return nil, ErrorResult(errors.New("upstream unavailable"))
		},
	}))
	require.NoError(t, b.AddAction(Action{ID: "recover", Handler: rec.handler}))
	require.NoError(t, b.AddSubscription(Subscription{SubjectID: "A", Status: ir.StatusError, ActionID: "recover"}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("A")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusError, res.Status)
	assert.Equal(t, []string{"recover"}, rec.calls)
}

func TestBus_Run_HandlerFailed(t *testing.T) {
	boom := errors.New("boom")
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:      "A",
		Handler: func(*ActionContext) (any, error) { return nil, boom },
	}))
	bus := mustBuild(t, b)

	err := bus.Run(context.Background())

	assert.True(t, IsCode(err, ErrCodeHandlerFailed))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, bus.State())
}

func TestBus_Run_HandlerPanics(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:      "A",
		Handler: func(*ActionContext) (any, error) { panic("nil map") },
	}))
	bus := mustBuild(t, b)

	err := bus.Run(context.Background())

	assert.True(t, IsCode(err, ErrCodeHandlerFailed))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nil map", pe.Value)
}

func TestBus_Run_ArgumentFromRequiredResult(t *testing.T) {
	var got greeting
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "count", Handler: returns(invoice{Total: 1}), Contract: ContractOf[invoice]()}))
	require.NoError(t, b.AddAction(Action{ID: "greet", Handler: returns(greeting{Text: "hi"}), Contract: ContractOf[greeting]()}))
	require.NoError(t, b.DoAction(Action{
		ID:       "print",
		Required: []string{"count", "greet"},
		Argument: ContractOf[greeting](),
		Handler: func(ctx *ActionContext) (any, error) {
			var err error
			got, err = ArgumentAs[greeting](ctx)
			return nil, err
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, "hi", got.Text)
}

func TestBus_Run_ArgumentFactory(t *testing.T) {
	var got any
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "count", Handler: returns(invoice{Total: 2}), Contract: ContractOf[invoice]()}))
	require.NoError(t, b.DoAction(Action{
		ID:       "double",
		Required: []string{"count"},
		ArgumentFactory: func(ctx *ActionContext) (any, error) {
			inv, _ := DataAs[invoice](ctx, "count")
			return invoice{Total: inv.Total * 2}, nil
		},
		Handler: func(ctx *ActionContext) (any, error) {
			got = ctx.Argument()
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, invoice{Total: 4}, got)
}

func TestBus_Run_ArgumentNotResolved(t *testing.T) {
	called := false
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "A", Handler: noop}))
	require.NoError(t, b.DoAction(Action{
		ID:             "B",
		Required:       []string{"A"},
		Argument:       ContractOf[greeting](),
		ExternalAccess: true,
		Handler: func(*ActionContext) (any, error) {
			called = true
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.False(t, called)
	res, err := bus.GetResult("B")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusError, res.Status)
}

func TestBus_Run_EventArgument(t *testing.T) {
	var got greeting
	var ev Event
	b := newTestBuilder(t, DefaultConfig())
	b.AddEvent(Event{ID: "greeted", Data: greeting{Text: "default"}})
	require.NoError(t, b.AddAction(Action{
		ID:       "listener",
		Listen:   "greeted",
		Argument: ContractOf[greeting](),
		Handler: func(ctx *ActionContext) (any, error) {
			got, _ = ArgumentAs[greeting](ctx)
			ev, _ = ctx.Event()
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.DispatchEvent(Event{ID: "greeted"}))
	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, "default", got.Text)
	assert.Equal(t, "greeted", ev.ID)
	assert.Equal(t, []string{"greeted"}, bus.Log().EventLog)

	err := bus.DispatchEvent(Event{ID: "unknown"})
	assert.True(t, IsCode(err, ErrCodeEventNotDefined))
}

func TestBus_Run_AlternateSubstitutesForDependents(t *testing.T) {
	var got greeting
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "fallback", Handler: returns(greeting{Text: "alt"}), Contract: ContractOf[greeting]()}))
	require.NoError(t, b.AddAction(Action{
		ID:             "primary",
		Handler:        fails,
		Contract:       ContractOf[greeting](),
		Alternates:     []string{"fallback"},
		ExternalAccess: true,
	}))
	require.NoError(t, b.DoAction(Action{
		ID:       "consumer",
		Required: []string{"primary"},
		Argument: ContractOf[greeting](),
		Handler: func(ctx *ActionContext) (any, error) {
			got, _ = ArgumentAs[greeting](ctx)
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, "alt", got.Text)
	assert.Equal(t, []string{"primary", "fallback", "consumer"}, bus.Log().ActionLog)

	own, err := bus.GetResult("primary")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusFail, own.Status, "GetResult returns the action's own result")
}

func TestBus_Run_AlternatesExhausted(t *testing.T) {
	var seen ir.Result
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "alt1", Handler: fails}))
	require.NoError(t, b.AddAction(Action{ID: "alt2", Handler: fails}))
	require.NoError(t, b.AddAction(Action{ID: "primary", Handler: fails, Alternates: []string{"alt1", "alt2"}}))
	require.NoError(t, b.DoAction(Action{
		ID:       "consumer",
		Required: []string{"primary"},
		Handler: func(ctx *ActionContext) (any, error) {
			seen, _ = ctx.Result("primary")
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, ir.StatusFail, seen.Status)
	assert.Equal(t, []string{"primary", "alt1", "alt2", "consumer"}, bus.Log().ActionLog)
}

func TestBus_Run_HandlerSubstitution(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:      "A",
		Handler: func(*ActionContext) (any, error) { return nil, errors.New("real handler") },
	}))
	b.AddHandlerSubstitution("A", rec.handler)
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, []string{"A"}, rec.calls)
}

func TestBus_Run_ResultSubstitution(t *testing.T) {
	var got greeting
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.AddAction(Action{ID: "load", Handler: returns(greeting{Text: "real"}), Contract: ContractOf[greeting]()}))
	require.NoError(t, b.DoAction(Action{
		ID:       "use",
		Required: []string{"load"},
		Argument: ContractOf[greeting](),
		Handler: func(ctx *ActionContext) (any, error) {
			got, _ = ArgumentAs[greeting](ctx)
			return nil, nil
		},
	}))
	b.AddResultSubstitution("load", greeting{Text: "stub"})
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, "stub", got.Text)
}

type greeterHandler struct {
	rec *recorder
}

func (h greeterHandler) Handle(ctx *ActionContext) (any, error) {
	h.rec.add("greeter:" + ctx.ActionID())
	return nil, nil
}

func TestBus_Run_HandlerFromContainer(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "shared", HandlerType: "audit"}))
	require.NoError(t, b.DoAction(Action{
		ID:          "bound",
		HandlerType: "handler",
		Bind:        map[string]string{"handler": "greeter"},
		Providers: map[string]Provider{
			"greeter": func(*Container) (any, error) { return greeterHandler{rec: rec}, nil },
		},
	}))
	b.AddSharedService("audit", HandlerFunc(rec.handler))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, []string{"shared", "greeter:bound"}, rec.calls)
}

func TestBus_Run_HandlerTypeNotAHandler(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", HandlerType: "config"}))
	b.AddSharedService("config", greeting{})
	bus := mustBuild(t, b)

	err := bus.Run(context.Background())

	assert.True(t, IsCode(err, ErrCodeHandlerFailed))
	assert.ErrorContains(t, err, "not a handler")
}

func TestBus_Run_ReentrantRun(t *testing.T) {
	var bus *Bus
	var inner error
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: noop}))
	b.AddHook(MainBeginHook(func(*StateService) error {
		inner = bus.Run(context.Background())
		return nil
	}))
	bus = mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.ErrorIs(t, inner, ErrReentrantRun)
}

func TestBus_Run_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: noop}))
	bus := mustBuild(t, b)

	err := bus.Run(ctx)

	assert.True(t, IsCode(err, ErrCodeRunCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bus.Log().ActionLog)
}

func TestBus_Run_SuspendPassThrough(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID:             "A",
		Contract:       ContractOf[greeting](),
		ExternalAccess: true,
		Handler: func(ctx *ActionContext) (any, error) {
			v := ctx.Suspend("ping")
			return greeting{Text: v.(string)}, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	res, err := bus.GetResult("A")
	require.NoError(t, err)
	assert.Equal(t, greeting{Text: "ping"}, res.Data)
}

func TestBus_Run_SuspendInterleaves(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID: "slow",
		Handler: func(ctx *ActionContext) (any, error) {
			ctx.Suspend(nil)
			return nil, nil
		},
	}))
	require.NoError(t, b.DoAction(Action{ID: "fast", Handler: noop}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	type entry struct {
		Kind   ir.TraceKind
		Action string
	}
	var steps []entry
	for _, e := range bus.Trace() {
		steps = append(steps, entry{e.Kind, e.ActionID})
	}
	assert.Equal(t, []entry{
		{ir.TraceDispatch, "slow"},
		{ir.TraceSuspend, "slow"},
		{ir.TraceDispatch, "fast"},
		{ir.TraceComplete, "fast"},
		{ir.TraceResume, "slow"},
		{ir.TraceComplete, "slow"},
	}, steps)
	assert.Equal(t, []string{"fast", "slow"}, bus.Log().ActionLog)
}

func TestBus_Run_FailureAbortsSuspendedHandlers(t *testing.T) {
	unwound := make(chan struct{})
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{
		ID: "waiting",
		Handler: func(ctx *ActionContext) (any, error) {
			defer close(unwound)
			ctx.Suspend(nil)
			return nil, nil
		},
	}))
	require.NoError(t, b.DoAction(Action{
		ID:      "broken",
		Handler: func(*ActionContext) (any, error) { return nil, errors.New("broken") },
	}))
	bus := mustBuild(t, b)

	err := bus.Run(context.Background())
	require.Error(t, err)

	select {
	case <-unwound:
	case <-time.After(time.Second):
		t.Fatal("suspended handler was not unwound")
	}
	assert.Empty(t, bus.Log().ActionLog)
}

func TestBus_Reset(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, DefaultConfig())
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: rec.handler, ExternalAccess: true}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))
	require.NoError(t, bus.Run(context.Background()))
	assert.Equal(t, []string{"A"}, rec.calls, "second run without reset skips completed actions")

	bus.Reset()
	assert.Equal(t, StateIdle, bus.State())
	assert.Empty(t, bus.RunID())
	assert.False(t, bus.ResultIsExists("A"))
	assert.Empty(t, bus.Trace())

	require.NoError(t, bus.Run(context.Background()))
	assert.Equal(t, []string{"A", "A"}, rec.calls)
	assert.Equal(t, "run-3", bus.RunID())
}

func TestBus_Metrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	b := NewBuilder(DefaultConfig(), WithLogger(slogt.New(t)), WithMetrics(m))
	require.NoError(t, b.DoAction(Action{ID: "A", Handler: noop}))
	require.NoError(t, b.DoAction(Action{ID: "B", Handler: fails}))
	require.NoError(t, b.DoAction(Action{
		ID: "C",
		Handler: func(ctx *ActionContext) (any, error) {
			ctx.Suspend(nil)
			return nil, nil
		},
	}))
	bus := mustBuild(t, b)

	require.NoError(t, bus.Run(context.Background()))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.actionsCompleted.WithLabelValues("Success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.actionsCompleted.WithLabelValues("Fail")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.suspensions))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))
}

func TestBus_Run_Deterministic(t *testing.T) {
	build := func() *Bus {
		b := newTestBuilder(t, DefaultConfig())
		require.NoError(t, b.DoAction(Action{ID: "A", Handler: noop, Required: []string{"B"}}))
		require.NoError(t, b.AddAction(Action{ID: "B", Handler: fails}))
		require.NoError(t, b.AddAction(Action{ID: "C", Handler: noop}))
		require.NoError(t, b.AddSubscription(Subscription{SubjectID: "B", Status: ir.StatusFail, ActionID: "C"}))
		return mustBuild(t, b)
	}

	first, second := build(), build()
	require.NoError(t, first.Run(context.Background()))
	require.NoError(t, second.Run(context.Background()))

	assert.Equal(t, first.Trace(), second.Trace())
	assert.Equal(t, ir.MustLogDigest(first.Log()), ir.MustLogDigest(second.Log()))
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("duplicate action", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		require.NoError(t, b.AddAction(Action{ID: "A", Handler: noop}))
		err := b.DoAction(Action{ID: "A", Handler: noop})
		assert.True(t, IsCode(err, ErrCodeActionAlreadyDefined))
	})

	t.Run("duplicate subscription", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		s := Subscription{SubjectID: "A", Status: ir.StatusSuccess, ActionID: "B"}
		require.NoError(t, b.AddSubscription(s))
		assert.True(t, IsCode(b.AddSubscription(s), ErrCodeSubscriptionAlreadyDefined))
	})

	t.Run("duplicate trigger", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		tr := Trigger{SubjectID: "A", ActionID: "B"}
		require.NoError(t, b.AddTrigger(tr))
		assert.True(t, IsCode(b.AddTrigger(tr), ErrCodeTriggerAlreadyDefined))
	})

	t.Run("undefined directive", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		b.DoExistsAction("missing")
		_, err := b.Build()
		assert.True(t, IsCode(err, ErrCodeActionNotDefined))
	})

	t.Run("subscription to undefined action", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		require.NoError(t, b.AddAction(Action{ID: "A", Handler: noop}))
		require.NoError(t, b.AddSubscription(Subscription{SubjectID: "A", Status: ir.StatusSuccess, ActionID: "missing"}))
		_, err := b.Build()
		assert.True(t, IsCode(err, ErrCodeActionNotDefined))
	})

	t.Run("circular require", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		require.NoError(t, b.AddAction(Action{ID: "A", Handler: noop, Required: []string{"B"}}))
		require.NoError(t, b.AddAction(Action{ID: "B", Handler: noop, Required: []string{"A"}}))
		_, err := b.Build()
		assert.True(t, IsCode(err, ErrCodeCircularRequire))
	})

	t.Run("substitution for undefined action", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		b.AddHandlerSubstitution("missing", noop)
		_, err := b.Build()
		assert.True(t, IsCode(err, ErrCodeActionNotDefined))
	})

	t.Run("required in any order", func(t *testing.T) {
		b := newTestBuilder(t, DefaultConfig())
		require.NoError(t, b.DoAction(Action{ID: "A", Handler: noop, Required: []string{"B"}}))
		require.NoError(t, b.AddAction(Action{ID: "B", Handler: noop}))
		_, err := b.Build()
		assert.NoError(t, err)
	})
}

func TestActionContext_SuspendOutsideHandler(t *testing.T) {
	ctx := &ActionContext{action: &Action{ID: "A"}}
	assert.Panics(t, func() { ctx.Suspend(nil) })
}
