package workflow

import (
	"errors"
	"log/slog"

	"github.com/roach88/actionbus/internal/compiler"
	"github.com/roach88/actionbus/internal/engine"
	"github.com/roach88/actionbus/internal/ir"
)

// Config returns the engine config a workflow declares.
func Config(w *ir.Workflow) engine.Config {
	return engine.Config{
		AllowCircularCall: w.Config.AllowCircularCall,
		LogMaxSize:        w.Config.LogMaxSize,
		EnabledValidation: w.Config.Validation,
	}
}

// NewBuilder validates w and returns a builder holding its events,
// actions, subscriptions, triggers and run directives. Callers may add
// hooks before Build.
//
// The returned builder uses a contract checker that knows MapContract;
// opts are applied after it, so WithContractChecker overrides it.
func NewBuilder(w *ir.Workflow, cfg engine.Config, logger *slog.Logger, opts ...engine.Option) (*engine.Builder, error) {
	if errs := compiler.Validate(w); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, errors.Join(joined...)
	}
	if logger == nil {
		logger = slog.Default()
	}

	all := append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithContractChecker(newChecker()),
	}, opts...)
	b := engine.NewBuilder(cfg, all...)

	for _, e := range w.Events {
		b.AddEvent(engine.Event{ID: e.ID, Data: dataOf(e.Data)})
	}
	for _, a := range w.Actions {
		if err := b.AddAction(action(a, logger)); err != nil {
			return nil, err
		}
	}
	for _, s := range w.Subscriptions {
		if err := b.AddSubscription(engine.Subscription{SubjectID: s.Subject, Status: s.Status, ActionID: s.Action}); err != nil {
			return nil, err
		}
	}
	for _, t := range w.Triggers {
		if err := b.AddTrigger(engine.Trigger{SubjectID: t.Subject, ActionID: t.Action}); err != nil {
			return nil, err
		}
	}
	for _, id := range w.Run {
		b.DoExistsAction(id)
	}
	b.AddHook(dispatchHook())

	logger.Debug("workflow assembled",
		"workflow", w.Name,
		"actions", len(w.Actions),
		"run", len(w.Run),
	)
	return b, nil
}

// Build is NewBuilder followed by Build, using the workflow's own config.
func Build(w *ir.Workflow, logger *slog.Logger, opts ...engine.Option) (*engine.Bus, error) {
	b, err := NewBuilder(w, Config(w), logger, opts...)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// action maps a declaration onto an engine action.
func action(a ir.ActionDecl, logger *slog.Logger) engine.Action {
	contract := ir.Contract(a.Contract)
	if contract == "" && producesData(a) {
		contract = MapContract
	}

	labels := map[string]string{"handler": a.Handler}
	if a.Rollback != "" {
		labels["rollback"] = a.Rollback
	}

	out := engine.Action{
		ID:             a.ID,
		Handler:        handlers[a.Handler](a),
		Required:       a.Require,
		Alternates:     a.Alternates,
		Sealed:         a.Sealed,
		Private:        a.Private,
		Listen:         a.Listen,
		Contract:       contract,
		ExternalAccess: a.External,
		Repeatable:     a.Repeatable,
		Lock:           a.Lock,
		Retries:        a.Retries,
		Labels:         labels,
	}
	if f, ok := rollbacks[a.Rollback]; ok {
		out.Rollback = f(a, logger)
	}
	return out
}
