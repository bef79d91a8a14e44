package ir

import (
	"fmt"
	"slices"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks an ActionDecl in isolation.
// Returns all errors (not fail-fast) for better developer experience.
func (a *ActionDecl) Validate() []ValidationError {
	var errs []ValidationError
	field := func(name string) string {
		return fmt.Sprintf("action.%s.%s", a.ID, name)
	}

	if a.ID == "" {
		errs = append(errs, ValidationError{Field: "action", Message: "action id is required"})
	}
	if a.Handler == "" {
		errs = append(errs, ValidationError{Field: field("handler"), Message: "handler is required"})
	}
	if a.Retries < 0 {
		errs = append(errs, ValidationError{
			Field:   field("retries"),
			Message: fmt.Sprintf("retries must be >= 0, got %d", a.Retries),
		})
	}
	if a.Lock && !a.Repeatable {
		errs = append(errs, ValidationError{
			Field:   field("lock"),
			Message: "lock only applies to repeatable actions",
		})
	}
	if slices.Contains(a.Require, a.ID) {
		errs = append(errs, ValidationError{Field: field("require"), Message: "action cannot require itself"})
	}
	if slices.Contains(a.Alternates, a.ID) {
		errs = append(errs, ValidationError{Field: field("alternates"), Message: "action cannot be its own alternate"})
	}

	return errs
}

// Validate checks cross references inside a workflow: required, alternate,
// sealed and run ids must name declared actions, listened events must be
// declared, subscription statuses must be valid.
func (w *Workflow) Validate() []ValidationError {
	var errs []ValidationError

	events := make(map[string]bool, len(w.Events))
	for i, e := range w.Events {
		if events[e.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("event[%d]", i),
				Message: fmt.Sprintf("duplicate event id %q", e.ID),
			})
		}
		events[e.ID] = true
	}

	actions := make(map[string]bool, len(w.Actions))
	for i, a := range w.Actions {
		if actions[a.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("action[%d]", i),
				Message: fmt.Sprintf("duplicate action id %q", a.ID),
			})
		}
		actions[a.ID] = true
	}

	ref := func(fieldPath, id, kind string) {
		if !actions[id] {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("%s references undefined action %q", kind, id),
			})
		}
	}

	for _, a := range w.Actions {
		errs = append(errs, a.Validate()...)
		for _, r := range a.Require {
			ref(fmt.Sprintf("action.%s.require", a.ID), r, "require")
		}
		for _, alt := range a.Alternates {
			ref(fmt.Sprintf("action.%s.alternates", a.ID), alt, "alternate")
		}
		if a.Listen != "" && !events[a.Listen] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("action.%s.listen", a.ID),
				Message: fmt.Sprintf("listen references undefined event %q", a.Listen),
			})
		}
		if a.Event != "" && !events[a.Event] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("action.%s.event", a.ID),
				Message: fmt.Sprintf("dispatch references undefined event %q", a.Event),
			})
		}
	}

	for i, s := range w.Subscriptions {
		path := fmt.Sprintf("subscription[%d]", i)
		ref(path+".subject", s.Subject, "subscription subject")
		ref(path+".action", s.Action, "subscription")
		if !s.Status.Valid() {
			errs = append(errs, ValidationError{
				Field:   path + ".status",
				Message: fmt.Sprintf("invalid status %q, must be one of: Success, Fail, Error", s.Status),
			})
		}
	}
	for i, t := range w.Triggers {
		path := fmt.Sprintf("trigger[%d]", i)
		ref(path+".subject", t.Subject, "trigger subject")
		ref(path+".action", t.Action, "trigger")
	}
	for i, id := range w.Run {
		ref(fmt.Sprintf("run[%d]", i), id, "run")
	}

	return errs
}
