package engine

import (
	"fmt"
	"maps"
	"slices"
)

// Builder collects a bus definition.
//
// Actions may be added in any order; references between them are
// validated once by Build. Duplicate ids, subscriptions and triggers are
// rejected as they are added.
type Builder struct {
	cfg           Config
	opts          []Option
	events        []Event
	actions       []Action
	actionIDs     map[string]bool
	directives    []string
	subscriptions []Subscription
	triggers      []Trigger
	hooks         []Hook
	shared        map[string]any
	handlerSubs   map[string]HandlerFunc
	resultSubs    map[string]any
}

// NewBuilder creates a builder for a bus with the given config.
func NewBuilder(cfg Config, opts ...Option) *Builder {
	return &Builder{
		cfg:         cfg,
		opts:        opts,
		actionIDs:   make(map[string]bool),
		shared:      make(map[string]any),
		handlerSubs: make(map[string]HandlerFunc),
		resultSubs:  make(map[string]any),
	}
}

// AddEvent declares an event.
func (b *Builder) AddEvent(e Event) *Builder {
	b.events = append(b.events, e)
	return b
}

// AddAction adds an action that runs only when requested.
func (b *Builder) AddAction(a Action) error {
	if b.actionIDs[a.ID] {
		return errActionAlreadyDefined(a.ID)
	}
	b.actionIDs[a.ID] = true
	b.actions = append(b.actions, a)
	return nil
}

// DoAction adds an action and requests it when the bus runs.
func (b *Builder) DoAction(a Action) error {
	if err := b.AddAction(a); err != nil {
		return err
	}
	b.directives = append(b.directives, a.ID)
	return nil
}

// DoExistsAction requests an action added elsewhere when the bus runs.
func (b *Builder) DoExistsAction(actionID string) *Builder {
	b.directives = append(b.directives, actionID)
	return b
}

// AddSubscription adds a conditional edge.
func (b *Builder) AddSubscription(s Subscription) error {
	if slices.ContainsFunc(b.subscriptions, func(o Subscription) bool { return o.Key() == s.Key() }) {
		return &DefinitionError{
			Code:     ErrCodeSubscriptionAlreadyDefined,
			ActionID: s.ActionID,
			Subject:  s.SubjectID,
			Message:  fmt.Sprintf("subscription %s is already defined", s.Key()),
		}
	}
	b.subscriptions = append(b.subscriptions, s)
	return nil
}

// AddTrigger adds an unconditional edge.
func (b *Builder) AddTrigger(t Trigger) error {
	if slices.ContainsFunc(b.triggers, func(o Trigger) bool { return o.Key() == t.Key() }) {
		return &DefinitionError{
			Code:     ErrCodeTriggerAlreadyDefined,
			ActionID: t.ActionID,
			Subject:  t.SubjectID,
			Message:  fmt.Sprintf("trigger %s is already defined", t.Key()),
		}
	}
	b.triggers = append(b.triggers, t)
	return nil
}

// AddHook registers a state hook. Hooks of a stage run in the order they
// were added.
func (b *Builder) AddHook(h Hook) *Builder {
	b.hooks = append(b.hooks, h)
	return b
}

// AddSharedService makes v resolvable by name from every action container.
func (b *Builder) AddSharedService(name string, v any) *Builder {
	b.shared[name] = v
	return b
}

// AddHandlerSubstitution replaces the handler of actionID.
func (b *Builder) AddHandlerSubstitution(actionID string, h HandlerFunc) *Builder {
	b.handlerSubs[actionID] = h
	return b
}

// AddResultSubstitution replaces the data dependents see for the
// required action requiredID.
func (b *Builder) AddResultSubstitution(requiredID string, data any) *Builder {
	b.resultSubs[requiredID] = data
	return b
}

// Build validates the definition and returns a bus ready to Run.
func (b *Builder) Build() (*Bus, error) {
	bus := newBus(b.cfg, b.opts...)

	for _, e := range b.events {
		bus.registry.AddEvent(e)
	}
	for _, a := range b.actions {
		bus.registry.insert(a)
	}
	if err := bus.registry.validateAll(); err != nil {
		return nil, err
	}

	for _, id := range b.directives {
		if !bus.registry.Exists(id) {
			return nil, errActionNotDefined("", id)
		}
	}
	bus.directives = slices.Clone(b.directives)

	for _, s := range b.subscriptions {
		if err := bus.addSubscription(s); err != nil {
			return nil, err
		}
	}
	for _, t := range b.triggers {
		if err := bus.addTrigger(t); err != nil {
			return nil, err
		}
	}

	for id := range b.handlerSubs {
		if !bus.registry.Exists(id) {
			return nil, errActionNotDefined("", id)
		}
	}
	for id := range b.resultSubs {
		if !bus.registry.Exists(id) {
			return nil, errActionNotDefined("", id)
		}
	}
	bus.handlerSubs = maps.Clone(b.handlerSubs)
	bus.resultSubs = maps.Clone(b.resultSubs)
	maps.Copy(bus.shared, b.shared)

	for _, h := range b.hooks {
		bus.hooks.Add(h)
	}

	bus.logger.Debug("bus built",
		"actions", len(b.actions),
		"events", len(b.events),
		"subscriptions", len(b.subscriptions),
		"triggers", len(b.triggers),
		"hooks", len(b.hooks),
	)
	return bus, nil
}
