package engine

import (
	"context"
	"fmt"

	"github.com/roach88/actionbus/internal/ir"
)

// ActionContext is handed to a handler for one execution of an action.
//
// It exposes the resolved argument, the results of required actions,
// the triggering event, the action's container and the suspend point.
// An ActionContext must not be retained after the handler returns.
type ActionContext struct {
	ctx       context.Context
	action    *Action
	argument  any
	results   map[string]ir.Result
	event     *Event
	container *Container
	co        *coroutine
}

// Context returns the run context.
func (c *ActionContext) Context() context.Context {
	return c.ctx
}

// ActionID returns the id of the executing action.
func (c *ActionContext) ActionID() string {
	return c.action.ID
}

// Labels returns the action's metadata.
func (c *ActionContext) Labels() map[string]string {
	return c.action.Labels
}

// Argument returns the resolved argument (nil when the action declares
// none).
func (c *ActionContext) Argument() any {
	return c.argument
}

// Result returns the result of a required action.
func (c *ActionContext) Result(actionID string) (ir.Result, bool) {
	r, ok := c.results[actionID]
	return r, ok
}

// Data returns the data of a required action's result, or nil.
func (c *ActionContext) Data(actionID string) any {
	return c.results[actionID].Data
}

// Event returns the event that requested this execution, if any.
func (c *ActionContext) Event() (Event, bool) {
	if c.event == nil {
		return Event{}, false
	}
	return *c.event, true
}

// Container returns the action's container.
func (c *ActionContext) Container() *Container {
	return c.container
}

// Suspend yields value to the bus and blocks until the bus resumes the
// action. The returned value is the resume value chosen by the
// MainSuspend and MainResume hooks; without hooks it is value itself.
func (c *ActionContext) Suspend(value any) any {
	if c.co == nil {
		panic("engine: Suspend called outside a running handler")
	}
	return c.co.yield(value)
}

// ArgumentAs returns the argument converted to T.
func ArgumentAs[T any](c *ActionContext) (T, error) {
	var zero T
	v, ok := c.argument.(T)
	if !ok {
		return zero, fmt.Errorf("argument of %s is %T, not %s", c.action.ID, c.argument, ContractOf[T]())
	}
	return v, nil
}

// DataAs returns a required action's data converted to T.
func DataAs[T any](c *ActionContext, actionID string) (T, bool) {
	v, ok := c.results[actionID].Data.(T)
	return v, ok
}
