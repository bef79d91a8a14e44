package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/actionbus/internal/ir"
)

// registry holds the registered actions and events.
//
// Lookups are pure. Iteration follows registration order so that
// GetByContract and event listeners resolve deterministically.
type registry struct {
	actions    map[string]*Action
	order      []string
	events     map[string]Event
	eventOrder []string
}

func newRegistry() *registry {
	return &registry{
		actions: make(map[string]*Action),
		events:  make(map[string]Event),
	}
}

// AddEvent registers an event. Re-adding an id replaces its default data.
func (r *registry) AddEvent(e Event) {
	if _, ok := r.events[e.ID]; !ok {
		r.eventOrder = append(r.eventOrder, e.ID)
	}
	r.events[e.ID] = e
}

// HasEvent reports whether an event id is registered.
func (r *registry) HasEvent(id string) bool {
	_, ok := r.events[id]
	return ok
}

// Register validates a against the already registered actions and adds it.
func (r *registry) Register(a Action) error {
	if _, ok := r.actions[a.ID]; ok {
		return errActionAlreadyDefined(a.ID)
	}
	if err := r.validate(&a); err != nil {
		return err
	}
	r.insert(a)
	return nil
}

// insert adds a without validation. Used by Builder.Build, which
// validates the whole set once every action is collected.
func (r *registry) insert(a Action) {
	r.actions[a.ID] = a.clone()
	r.order = append(r.order, a.ID)
}

// validate checks a's references against the registry.
func (r *registry) validate(a *Action) error {
	if a.ID == "" {
		return &DefinitionError{Code: ErrCodeActionNotDefined, Message: "action id is required"}
	}
	if a.Handler == nil && a.HandlerType == "" {
		return &DefinitionError{
			Code:     ErrCodeHandlerNotDefined,
			ActionID: a.ID,
			Message:  "action has neither a handler nor a handler type",
		}
	}

	for _, req := range a.Required {
		dep, ok := r.actions[req]
		if !ok {
			return errActionNotDefined(a.ID, req)
		}
		if dep.Private {
			return &DefinitionError{
				Code:     ErrCodeCannotRequirePrivate,
				ActionID: a.ID,
				Subject:  req,
				Message:  fmt.Sprintf("action %q is private and cannot be required", req),
			}
		}
		if len(dep.Sealed) > 0 && !slices.Contains(dep.Sealed, a.ID) {
			return &DefinitionError{
				Code:     ErrCodeNotAllowedSealed,
				ActionID: a.ID,
				Subject:  req,
				Message:  fmt.Sprintf("action %q is sealed and does not allow %q", req, a.ID),
			}
		}
	}

	for _, alt := range a.Alternates {
		if _, ok := r.actions[alt]; !ok {
			return errActionNotDefined(a.ID, alt)
		}
	}

	if a.Listen != "" && !r.HasEvent(a.Listen) {
		return errEventNotDefined(a.ID, a.Listen)
	}

	return nil
}

// validateAll validates every action in registration order and rejects
// cycles through Required.
func (r *registry) validateAll() error {
	for _, id := range r.order {
		if err := r.validate(r.actions[id]); err != nil {
			return err
		}
	}
	if cycle := r.requireCycle(); cycle != nil {
		return &DefinitionError{
			Code:     ErrCodeCircularRequire,
			ActionID: cycle[0],
			Message:  "required actions form a cycle: " + strings.Join(cycle, " -> "),
		}
	}
	return nil
}

// requireCycle returns one cycle through Required edges, or nil.
func (r *registry) requireCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.actions))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, req := range r.actions[id].Required {
			if _, ok := r.actions[req]; !ok {
				continue
			}
			switch state[req] {
			case visiting:
				start := slices.Index(stack, req)
				cycle = append(slices.Clone(stack[start:]), req)
				return true
			case unvisited:
				if visit(req) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range r.order {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// Remove deletes id and, recursively, every action that requires it or
// names it as an alternate. Returns the removed ids in removal order.
func (r *registry) Remove(id string) []string {
	if _, ok := r.actions[id]; !ok {
		return nil
	}

	removed := []string{id}
	delete(r.actions, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })

	for _, other := range slices.Clone(r.order) {
		a, ok := r.actions[other]
		if !ok {
			continue
		}
		if slices.Contains(a.Required, id) || slices.Contains(a.Alternates, id) {
			removed = append(removed, r.Remove(other)...)
		}
	}
	return removed
}

// Get returns the action registered under id.
func (r *registry) Get(id string) (*Action, bool) {
	a, ok := r.actions[id]
	return a, ok
}

// Exists reports whether id is registered.
func (r *registry) Exists(id string) bool {
	_, ok := r.actions[id]
	return ok
}

// GetByContract returns every action declaring contract c, in
// registration order.
func (r *registry) GetByContract(c ir.Contract) []*Action {
	var out []*Action
	for _, id := range r.order {
		if a := r.actions[id]; a.Contract == c {
			out = append(out, a)
		}
	}
	return out
}

// Listeners returns the actions listening on eventID, in registration
// order.
func (r *registry) Listeners(eventID string) []*Action {
	var out []*Action
	for _, id := range r.order {
		if a := r.actions[id]; a.Listen == eventID {
			out = append(out, a)
		}
	}
	return out
}
