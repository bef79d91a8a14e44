package engine

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/actionbus/internal/ir"
)

// HandlerFunc executes an action. It returns either an ir.Result (or
// *ir.Result) to choose the status explicitly, or plain data which is
// stored as a Success result. Returning an error fails the run unless the
// error is wrapped with ErrorResult.
type HandlerFunc func(ctx *ActionContext) (any, error)

// Handler is implemented by container-resolved handler objects
// (see Action.HandlerType).
type Handler interface {
	Handle(ctx *ActionContext) (any, error)
}

// RollbackFunc undoes a completed action during rollback.
type RollbackFunc func(rb Rollback) error

// RollbackHandler is implemented by container-resolved rollback objects
// (see Action.RollbackType).
type RollbackHandler interface {
	Rollback(rb Rollback) error
}

// Rollback describes the completed action being undone. Context is the
// run context; it may already be done when the run was cancelled.
type Rollback struct {
	Context  context.Context
	ActionID string
	Result   ir.Result
	Argument any
}

// ArgumentFactory builds an action's argument from its required results.
type ArgumentFactory func(ctx *ActionContext) (any, error)

// Action is a registered unit of work.
//
// Required actions must complete before the action runs; their results
// are visible through ActionContext.Result. Alternates are tried in order
// when the action completes with Fail. Sealed lists the only action ids
// allowed to require this action; Private forbids requiring it at all.
type Action struct {
	ID string

	// Handler runs the action. HandlerType names a container entry that
	// resolves to a HandlerFunc, a func(*ActionContext) (any, error) or a
	// Handler, and is used when Handler is nil.
	Handler     HandlerFunc
	HandlerType string

	// Bind aliases container names; Providers construct container entries.
	Bind      map[string]string
	Providers map[string]Provider

	Required   []string
	Alternates []string
	Sealed     []string
	Private    bool

	// Listen names the event whose dispatch requests this action.
	Listen string

	// Contract is the type of data the handler promises to return.
	Contract ir.Contract

	// Argument is the contract of the required result handed to the
	// handler as its argument. ArgumentFactory takes precedence.
	Argument        ir.Contract
	ArgumentFactory ArgumentFactory

	// ExternalAccess exposes the result through Bus.GetResult.
	ExternalAccess bool

	// Repeatable allows the action to be enqueued again after it
	// completed. Lock skips new requests while an instance is outstanding.
	Repeatable bool
	Lock       bool

	// Retries is the number of identical (action, status) completions
	// tolerated per run before a circular call is raised.
	Retries int

	Rollback     RollbackFunc
	RollbackType string

	// Labels is free-form metadata carried for hosts and hooks.
	Labels map[string]string
}

// clone returns a copy whose slices and maps are not shared with a.
func (a Action) clone() *Action {
	c := a
	c.Required = slices.Clone(a.Required)
	c.Alternates = slices.Clone(a.Alternates)
	c.Sealed = slices.Clone(a.Sealed)
	c.Bind = maps.Clone(a.Bind)
	c.Providers = maps.Clone(a.Providers)
	c.Labels = maps.Clone(a.Labels)
	return &c
}

// hasRollback reports whether rollback has anything to call.
func (a *Action) hasRollback() bool {
	return a.Rollback != nil || a.RollbackType != ""
}

// Event is a named signal. Dispatching it requests every action whose
// Listen names it; Data is visible to them through ActionContext.Event.
type Event struct {
	ID   string
	Data any
}

// Subscription requests ActionID whenever SubjectID completes with Status.
type Subscription struct {
	SubjectID string
	Status    ir.Status
	ActionID  string
}

// Key is the uniqueness key "subject@status@action".
func (s Subscription) Key() string {
	return s.SubjectID + "@" + string(s.Status) + "@" + s.ActionID
}

// Trigger requests ActionID whenever SubjectID completes, whatever the
// status.
type Trigger struct {
	SubjectID string
	ActionID  string
}

// Key is the uniqueness key "subject@*@action".
func (t Trigger) Key() string {
	return t.SubjectID + "@*@" + t.ActionID
}
