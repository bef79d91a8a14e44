package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/actionbus/internal/ir"
)

// StateContext is a key/value scratchpad shared by the hooks of one run.
// Bus.Reset clears it.
type StateContext struct {
	values map[string]any
}

func newStateContext() *StateContext {
	return &StateContext{values: make(map[string]any)}
}

// Write stores v under key.
func (c *StateContext) Write(key string, v any) {
	c.values[key] = v
}

// Read returns the value under key, or nil.
func (c *StateContext) Read(key string) any {
	return c.values[key]
}

// Has reports whether key is set.
func (c *StateContext) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// StateService is the controlled view of the bus handed to hooks.
//
// Hooks run synchronously on the scheduling loop, so every mutation is
// applied between two handler steps and takes effect from the next
// iteration. Hooks must not call Bus.Run.
type StateService struct {
	bus *Bus
}

// RunID returns the id of the current run.
func (s *StateService) RunID() string { return s.bus.runID }

// Context returns the run's shared scratchpad.
func (s *StateService) Context() *StateContext { return s.bus.stateCtx }

// Logger returns the bus logger.
func (s *StateService) Logger() *slog.Logger { return s.bus.logger }

// AddAction registers a unless an action with its id already exists.
func (s *StateService) AddAction(a Action) error {
	if s.bus.registry.Exists(a.ID) {
		return nil
	}
	return s.bus.registerAction(a)
}

// DoAction registers a if needed and requests it.
func (s *StateService) DoAction(a Action) error {
	if err := s.AddAction(a); err != nil {
		return err
	}
	return s.bus.requestAction(a.ID, nil)
}

// DoExistsAction requests an already registered action.
func (s *StateService) DoExistsAction(actionID string) error {
	if !s.bus.registry.Exists(actionID) {
		return errActionNotDefined("", actionID)
	}
	return s.bus.requestAction(actionID, nil)
}

// RemoveAction removes actionID, every action depending on it, and
// their subscriptions and triggers. Stored results are kept.
func (s *StateService) RemoveAction(actionID string) {
	s.bus.removeAction(actionID)
}

// ActionIsExists reports whether actionID is registered.
func (s *StateService) ActionIsExists(actionID string) bool {
	return s.bus.registry.Exists(actionID)
}

// GetByID returns a copy of the registered action.
func (s *StateService) GetByID(actionID string) (Action, error) {
	a, ok := s.bus.registry.Get(actionID)
	if !ok {
		return Action{}, errActionNotDefined("", actionID)
	}
	return *a.clone(), nil
}

// GetByContract returns copies of the actions declaring contract c.
func (s *StateService) GetByContract(c ir.Contract) []Action {
	found := s.bus.registry.GetByContract(c)
	out := make([]Action, len(found))
	for i, a := range found {
		out[i] = *a.clone()
	}
	return out
}

// AddEvent registers an event.
func (s *StateService) AddEvent(e Event) {
	s.bus.registry.AddEvent(e)
}

// DispatchEvent requests every action listening on e.
func (s *StateService) DispatchEvent(e Event) error {
	return s.bus.dispatchEvent(e)
}

// AddSubscription adds a subscription between registered actions.
func (s *StateService) AddSubscription(sub Subscription) error {
	return s.bus.addSubscription(sub)
}

// RemoveSubscription deletes a subscription. Returns false if absent.
func (s *StateService) RemoveSubscription(sub Subscription) bool {
	return s.bus.subs.RemoveSubscription(sub)
}

// SubscriptionIsExists reports whether the subscription exists.
func (s *StateService) SubscriptionIsExists(sub Subscription) bool {
	return s.bus.subs.SubscriptionExists(sub)
}

// AddTrigger adds a trigger between registered actions.
func (s *StateService) AddTrigger(t Trigger) error {
	return s.bus.addTrigger(t)
}

// RemoveTrigger deletes a trigger. Returns false if absent.
func (s *StateService) RemoveTrigger(t Trigger) bool {
	return s.bus.subs.RemoveTrigger(t)
}

// TriggerIsExists reports whether the trigger exists.
func (s *StateService) TriggerIsExists(t Trigger) bool {
	return s.bus.subs.TriggerExists(t)
}

// Subscriptions returns a copy of the registered subscriptions.
func (s *StateService) Subscriptions() []Subscription {
	return s.bus.subs.Subscriptions()
}

// Triggers returns a copy of the registered triggers.
func (s *StateService) Triggers() []Trigger {
	return s.bus.subs.Triggers()
}

// InQueue reports whether a task for actionID is queued.
func (s *StateService) InQueue(actionID string) bool {
	return s.bus.queue.Contains(actionID)
}

// QueueIsEmpty reports whether the ready queue is empty.
func (s *StateService) QueueIsEmpty() bool { return s.bus.queue.IsEmpty() }

// QueueCount returns the ready queue length.
func (s *StateService) QueueCount() int { return s.bus.queue.Len() }

// ResultIsExists reports whether actionID has a stored result. Unlike
// Bus.ResultIsExists it ignores ExternalAccess.
func (s *StateService) ResultIsExists(actionID string) bool {
	return s.bus.results.Exists(actionID)
}

// GetResult returns the stored result of actionID, ignoring
// ExternalAccess.
func (s *StateService) GetResult(actionID string) (ir.Result, error) {
	r, ok := s.bus.results.Get(actionID)
	if !ok {
		return ir.Result{}, errResultNotExists(actionID)
	}
	return r, nil
}

// RollbackWithoutException rolls back completed actions without failing
// the run: all of them when step is 0, otherwise the last step. A negative
// step is rejected and rolls back nothing.
func (s *StateService) RollbackWithoutException(step int) error {
	if step < 0 {
		return fmt.Errorf("rollback step must not be negative, got %d", step)
	}
	return s.bus.rollback(s.bus.runCtx, step, rollbackVoluntary)
}

// AddSharedService makes v resolvable by name from every action
// container created from now on.
func (s *StateService) AddSharedService(name string, v any) {
	s.bus.shared[name] = v
}

// Log returns a snapshot of the execution logs.
func (s *StateService) Log() ir.LogSnapshot {
	return s.bus.log.Snapshot()
}

// ActionStateService is the view handed to ActionBefore and ActionAfter
// hooks.
type ActionStateService struct {
	*StateService
	action    *Action
	argument  any
	result    ir.Result
	completed bool
}

// ActionID returns the observed action's id.
func (s *ActionStateService) ActionID() string { return s.action.ID }

// Argument returns the argument the handler receives.
func (s *ActionStateService) Argument() any { return s.argument }

// Result returns the stored result. The second value is false in
// ActionBefore hooks.
func (s *ActionStateService) Result() (ir.Result, bool) {
	return s.result, s.completed
}

// SuspendService is the view handed to MainSuspend hooks.
type SuspendService struct {
	*StateService
	suspension Suspension
	container  *Container
}

// ActionID returns the suspended action's id.
func (s *SuspendService) ActionID() string { return s.suspension.ActionID }

// Value returns the value the handler yielded.
func (s *SuspendService) Value() any { return s.suspension.Value }

// Container returns the suspended action's container.
func (s *SuspendService) Container() *Container { return s.container }

// ResumeService is the view handed to MainResume hooks.
type ResumeService struct {
	*StateService
	actionID string
	value    any
}

// ActionID returns the resuming action's id.
func (s *ResumeService) ActionID() string { return s.actionID }

// ResumeValue returns the value about to be delivered to the handler.
func (s *ResumeService) ResumeValue() any { return s.value }
