package compiler

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/actionbus/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Declaration errors (E101-E109)
	ErrNoActions         = "E101" // at least one action required
	ErrInvalidID         = "E102" // malformed action or event id
	ErrDuplicateID       = "E103" // duplicate action or event id
	ErrUnknownHandler    = "E104" // handler not in the built-in catalog
	ErrUnknownRollback   = "E105" // rollback not in the built-in catalog
	ErrInvalidRetries    = "E106" // negative retries
	ErrLockNotRepeatable = "E107" // lock on a non-repeatable action
	ErrDispatchNoEvent   = "E108" // dispatch handler without event

	// Reference errors (E110-E119)
	ErrUndefinedAction   = "E110" // reference to an undeclared action
	ErrUndefinedEvent    = "E111" // reference to an undeclared event
	ErrInvalidStatus     = "E112" // subscription status not Success/Fail/Error
	ErrSelfReference     = "E113" // action requires or substitutes itself
	ErrCircularRequire   = "E114" // require edges form a cycle
	ErrRequirePrivate    = "E115" // requiring a private action
	ErrSealedNotAllowed  = "E116" // requiring a sealed action from outside its list
	ErrInvalidLogMaxSize = "E117" // non-positive ring size
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled workflow against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch w := v.(type) {
	case *ir.Workflow:
		return validateWorkflow(w)
	case ir.Workflow:
		return validateWorkflow(&w)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// idPattern matches dotted lower-camel ids: "load", "order.charge",
// "order.refund_v2".
var idPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*(\.[a-z][a-zA-Z0-9_]*)*$`)

func validateWorkflow(w *ir.Workflow) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E101: at least one action required
	if len(w.Actions) == 0 {
		add(ErrNoActions, "action", "at least one action is required")
	}

	// E117: ring size
	if w.Config.LogMaxSize <= 0 {
		add(ErrInvalidLogMaxSize, "config.log_max_size", "log_max_size must be positive, got %d", w.Config.LogMaxSize)
	}

	events := make(map[string]bool, len(w.Events))
	for i, e := range w.Events {
		field := fmt.Sprintf("event[%d]", i)
		if !idPattern.MatchString(e.ID) {
			add(ErrInvalidID, field, "invalid event id %q", e.ID)
		}
		if events[e.ID] {
			add(ErrDuplicateID, field, "duplicate event id %q", e.ID)
		}
		events[e.ID] = true
	}

	actions := make(map[string]ir.ActionDecl, len(w.Actions))
	for i, a := range w.Actions {
		field := fmt.Sprintf("action[%d]", i)
		if !idPattern.MatchString(a.ID) {
			add(ErrInvalidID, field, "invalid action id %q", a.ID)
		}
		if _, dup := actions[a.ID]; dup {
			add(ErrDuplicateID, field, "duplicate action id %q", a.ID)
		}
		actions[a.ID] = a
	}

	for _, a := range w.Actions {
		field := func(name string) string { return fmt.Sprintf("action.%s.%s", a.ID, name) }

		// E104/E105: catalog names
		if !slices.Contains(ir.BuiltinHandlers, a.Handler) {
			add(ErrUnknownHandler, field("handler"), "unknown handler %q, must be one of %v", a.Handler, ir.BuiltinHandlers)
		}
		if a.Rollback != "" && !slices.Contains(ir.BuiltinRollbacks, a.Rollback) {
			add(ErrUnknownRollback, field("rollback"), "unknown rollback %q, must be one of %v", a.Rollback, ir.BuiltinRollbacks)
		}

		// E106-E108: field constraints
		if a.Retries < 0 {
			add(ErrInvalidRetries, field("retries"), "retries must be >= 0, got %d", a.Retries)
		}
		if a.Lock && !a.Repeatable {
			add(ErrLockNotRepeatable, field("lock"), "lock only applies to repeatable actions")
		}
		if a.Handler == "dispatch" && a.Event == "" {
			add(ErrDispatchNoEvent, field("event"), "dispatch handler requires an event")
		}

		// E110-E116: references
		for _, req := range a.Require {
			if req == a.ID {
				add(ErrSelfReference, field("require"), "action cannot require itself")
				continue
			}
			dep, ok := actions[req]
			if !ok {
				add(ErrUndefinedAction, field("require"), "require references undefined action %q", req)
				continue
			}
			if dep.Private {
				add(ErrRequirePrivate, field("require"), "action %q is private and cannot be required", req)
			}
			if len(dep.Sealed) > 0 && !slices.Contains(dep.Sealed, a.ID) {
				add(ErrSealedNotAllowed, field("require"), "action %q is sealed and does not allow %q", req, a.ID)
			}
		}
		for _, alt := range a.Alternates {
			if alt == a.ID {
				add(ErrSelfReference, field("alternates"), "action cannot be its own alternate")
			} else if _, ok := actions[alt]; !ok {
				add(ErrUndefinedAction, field("alternates"), "alternate references undefined action %q", alt)
			}
		}
		for _, s := range a.Sealed {
			if _, ok := actions[s]; !ok {
				add(ErrUndefinedAction, field("sealed"), "sealed references undefined action %q", s)
			}
		}
		if a.Listen != "" && !events[a.Listen] {
			add(ErrUndefinedEvent, field("listen"), "listen references undefined event %q", a.Listen)
		}
		if a.Event != "" && !events[a.Event] {
			add(ErrUndefinedEvent, field("event"), "dispatch references undefined event %q", a.Event)
		}
	}

	for i, s := range w.Subscriptions {
		field := fmt.Sprintf("subscription[%d]", i)
		if _, ok := actions[s.Subject]; !ok {
			add(ErrUndefinedAction, field+".subject", "subscription subject references undefined action %q", s.Subject)
		}
		if _, ok := actions[s.Action]; !ok {
			add(ErrUndefinedAction, field+".action", "subscription references undefined action %q", s.Action)
		}
		if !s.Status.Valid() {
			add(ErrInvalidStatus, field+".status", "invalid status %q, must be one of: Success, Fail, Error", s.Status)
		}
	}
	for i, t := range w.Triggers {
		field := fmt.Sprintf("trigger[%d]", i)
		if _, ok := actions[t.Subject]; !ok {
			add(ErrUndefinedAction, field+".subject", "trigger subject references undefined action %q", t.Subject)
		}
		if _, ok := actions[t.Action]; !ok {
			add(ErrUndefinedAction, field+".action", "trigger references undefined action %q", t.Action)
		}
	}
	for i, id := range w.Run {
		if _, ok := actions[id]; !ok {
			add(ErrUndefinedAction, fmt.Sprintf("run[%d]", i), "run references undefined action %q", id)
		}
	}

	// E114: require cycles can never be satisfied
	for _, cycle := range RequireCycles(w) {
		add(ErrCircularRequire, "action."+cycle[0]+".require", "required actions form a cycle: %s", joinPath(cycle))
	}

	return errs
}
