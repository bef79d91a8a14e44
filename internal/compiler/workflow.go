package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/actionbus/internal/ir"
)

// CompileWorkflow parses a CUE value into a Workflow.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the root of a workflow package:
//
//	name: "checkout"
//	event: { "order.placed": {} }
//	action: {
//		"order.load":   { handler: "emit", data: {id: 1}, external: true }
//		"order.charge": { handler: "noop", require: ["order.load"], rollback: "record" }
//	}
//	subscription: [{ subject: "order.charge", status: "Fail", action: "order.refund" }]
//	trigger: [{ subject: "order.load", action: "order.audit" }]
//	run: ["order.charge"]
//	config: { allow_circular_call: false, log_max_size: 100, validation: true }
//
// Actions and events keep their declaration order.
func CompileWorkflow(v cue.Value) (*ir.Workflow, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	w := &ir.Workflow{}

	name, err := optionalString(v, "name")
	if err != nil {
		return nil, err
	}
	w.Name = name

	if w.Config, err = parseConfig(v); err != nil {
		return nil, err
	}
	if w.Events, err = parseEvents(v); err != nil {
		return nil, err
	}
	if w.Actions, err = parseActions(v); err != nil {
		return nil, err
	}
	if len(w.Actions) == 0 {
		return nil, &CompileError{
			Field:   "action",
			Message: "at least one action is required",
			Pos:     v.Pos(),
		}
	}
	if w.Subscriptions, err = parseSubscriptions(v); err != nil {
		return nil, err
	}
	if w.Triggers, err = parseTriggers(v); err != nil {
		return nil, err
	}
	if w.Run, err = stringList(v, "run"); err != nil {
		return nil, err
	}

	return w, nil
}

// parseConfig reads the optional config block. Missing fields keep the
// engine defaults (validation on, ring size 100).
func parseConfig(v cue.Value) (ir.WorkflowConfig, error) {
	cfg := ir.WorkflowConfig{
		LogMaxSize: ir.DefaultLogMaxSize,
		Validation: true,
	}

	cv := v.LookupPath(cue.ParsePath("config"))
	if !cv.Exists() {
		return cfg, nil
	}

	var err error
	if cfg.AllowCircularCall, err = optionalBool(cv, "allow_circular_call", cfg.AllowCircularCall); err != nil {
		return cfg, err
	}
	if cfg.Validation, err = optionalBool(cv, "validation", cfg.Validation); err != nil {
		return cfg, err
	}

	sizeVal := cv.LookupPath(cue.ParsePath("log_max_size"))
	if sizeVal.Exists() {
		size, err := sizeVal.Int64()
		if err != nil {
			return cfg, formatCUEError(err)
		}
		if size <= 0 {
			return cfg, &CompileError{
				Field:   "config.log_max_size",
				Message: fmt.Sprintf("log_max_size must be positive, got %d", size),
				Pos:     sizeVal.Pos(),
			}
		}
		cfg.LogMaxSize = int(size)
	}

	return cfg, nil
}

// parseEvents extracts event declarations.
func parseEvents(v cue.Value) ([]ir.EventDecl, error) {
	var events []ir.EventDecl

	eventsVal := v.LookupPath(cue.ParsePath("event"))
	if !eventsVal.Exists() {
		return events, nil
	}

	iter, err := eventsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		e := ir.EventDecl{ID: iter.Selector().Unquoted()}
		data, err := optionalData(iter.Value(), "event."+e.ID)
		if err != nil {
			return nil, err
		}
		e.Data = data
		events = append(events, e)
	}

	return events, nil
}

// parseActions extracts action declarations.
func parseActions(v cue.Value) ([]ir.ActionDecl, error) {
	var actions []ir.ActionDecl

	actionsVal := v.LookupPath(cue.ParsePath("action"))
	if !actionsVal.Exists() {
		return actions, nil
	}

	iter, err := actionsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		a, err := parseAction(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	return actions, nil
}

func parseAction(id string, v cue.Value) (ir.ActionDecl, error) {
	a := ir.ActionDecl{ID: id}
	field := "action." + id

	// Handler (required)
	handlerVal := v.LookupPath(cue.ParsePath("handler"))
	if !handlerVal.Exists() {
		return a, &CompileError{
			Field:   field + ".handler",
			Message: "handler is required",
			Pos:     v.Pos(),
		}
	}
	handler, err := handlerVal.String()
	if err != nil {
		return a, formatCUEError(err)
	}
	a.Handler = handler

	if a.Data, err = optionalData(v, field); err != nil {
		return a, err
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"event", &a.Event},
		{"listen", &a.Listen},
		{"contract", &a.Contract},
		{"rollback", &a.Rollback},
	}
	for _, s := range strs {
		if *s.dst, err = optionalString(v, s.name); err != nil {
			return a, err
		}
	}

	lists := []struct {
		name string
		dst  *[]string
	}{
		{"require", &a.Require},
		{"alternates", &a.Alternates},
		{"sealed", &a.Sealed},
	}
	for _, l := range lists {
		if *l.dst, err = stringList(v, l.name); err != nil {
			return a, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"private", &a.Private},
		{"external", &a.External},
		{"repeatable", &a.Repeatable},
		{"lock", &a.Lock},
	}
	for _, b := range bools {
		if *b.dst, err = optionalBool(v, b.name, false); err != nil {
			return a, err
		}
	}

	retriesVal := v.LookupPath(cue.ParsePath("retries"))
	if retriesVal.Exists() {
		n, err := retriesVal.Int64()
		if err != nil {
			return a, formatCUEError(err)
		}
		a.Retries = int(n)
	}

	return a, nil
}

// parseSubscriptions extracts the subscription list.
func parseSubscriptions(v cue.Value) ([]ir.SubscriptionDecl, error) {
	var subs []ir.SubscriptionDecl

	listVal := v.LookupPath(cue.ParsePath("subscription"))
	if !listVal.Exists() {
		return subs, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		sv := iter.Value()
		field := fmt.Sprintf("subscription[%d]", i)

		subject, err := requiredString(sv, "subject", field)
		if err != nil {
			return nil, err
		}
		action, err := requiredString(sv, "action", field)
		if err != nil {
			return nil, err
		}
		statusStr, err := requiredString(sv, "status", field)
		if err != nil {
			return nil, err
		}
		status, err := ir.ParseStatus(statusStr)
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".status",
				Message: err.Error(),
				Pos:     sv.Pos(),
			}
		}

		subs = append(subs, ir.SubscriptionDecl{Subject: subject, Status: status, Action: action})
	}

	return subs, nil
}

// parseTriggers extracts the trigger list.
func parseTriggers(v cue.Value) ([]ir.TriggerDecl, error) {
	var triggers []ir.TriggerDecl

	listVal := v.LookupPath(cue.ParsePath("trigger"))
	if !listVal.Exists() {
		return triggers, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		tv := iter.Value()
		field := fmt.Sprintf("trigger[%d]", i)

		subject, err := requiredString(tv, "subject", field)
		if err != nil {
			return nil, err
		}
		action, err := requiredString(tv, "action", field)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, ir.TriggerDecl{Subject: subject, Action: action})
	}

	return triggers, nil
}

// optionalData decodes the "data" field of v into a map.
func optionalData(v cue.Value, field string) (map[string]any, error) {
	dataVal := v.LookupPath(cue.ParsePath("data"))
	if !dataVal.Exists() {
		return nil, nil
	}
	if dataVal.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   field + ".data",
			Message: "data must be a struct",
			Pos:     dataVal.Pos(),
		}
	}
	decoded, err := decodeValue(dataVal, field+".data")
	if err != nil {
		return nil, err
	}
	return decoded.(map[string]any), nil
}

// decodeValue converts a concrete CUE value to the types MarshalCanonical
// accepts. Floats and null are rejected so data always hashes.
func decodeValue(v cue.Value, field string) (any, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return concrete(v, field, v.String)
	case cue.IntKind:
		return concrete(v, field, v.Int64)
	case cue.BoolKind:
		return concrete(v, field, v.Bool)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for i := 0; iter.Next(); i++ {
			item, err := decodeValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := make(map[string]any)
		for iter.Next() {
			key := iter.Selector().Unquoted()
			item, err := decodeValue(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// concrete reads a scalar, reporting non-concrete values (e.g. a bare
// `string` type) with the field path.
func concrete[T any](v cue.Value, field string, get func() (T, error)) (any, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{
			Field:   field,
			Message: "value must be concrete",
			Pos:     v.Pos(),
		}
	}
	out, err := get()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string, def bool) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(name))
	if !bv.Exists() {
		return def, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return def, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value, name string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(name))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
