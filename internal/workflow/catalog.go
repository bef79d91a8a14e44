package workflow

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/roach88/actionbus/internal/engine"
	"github.com/roach88/actionbus/internal/ir"
)

// MapContract is the contract of declared data.
const MapContract ir.Contract = "map"

// handlerFactory builds the handler of one declared action.
type handlerFactory func(a ir.ActionDecl) engine.HandlerFunc

var handlers = map[string]handlerFactory{
	"noop": func(ir.ActionDecl) engine.HandlerFunc {
		return func(*engine.ActionContext) (any, error) {
			return nil, nil
		}
	},
	"emit": func(a ir.ActionDecl) engine.HandlerFunc {
		return func(*engine.ActionContext) (any, error) {
			return dataOf(a.Data), nil
		}
	},
	"fail": func(a ir.ActionDecl) engine.HandlerFunc {
		return func(*engine.ActionContext) (any, error) {
			return ir.Fail(dataOf(a.Data)), nil
		}
	},
	"error": func(a ir.ActionDecl) engine.HandlerFunc {
		return func(*engine.ActionContext) (any, error) {
			return nil, engine.ErrorResult(fmt.Errorf("action %s reported an error", a.ID))
		}
	},
	"panic": func(a ir.ActionDecl) engine.HandlerFunc {
		return func(*engine.ActionContext) (any, error) {
			panic(fmt.Sprintf("action %s panicked", a.ID))
		}
	},
	"suspend": func(a ir.ActionDecl) engine.HandlerFunc {
		return func(ctx *engine.ActionContext) (any, error) {
			return ctx.Suspend(dataOf(a.Data)), nil
		}
	},
	"dispatch": func(a ir.ActionDecl) engine.HandlerFunc {
		return func(ctx *engine.ActionContext) (any, error) {
			ctx.Suspend(dispatchRequest{Event: engine.Event{ID: a.Event, Data: dataOf(a.Data)}})
			return nil, nil
		}
	},
}

// producesData reports whether the handler's result carries the declared
// data, so the action needs a contract.
func producesData(a ir.ActionDecl) bool {
	switch a.Handler {
	case "emit", "fail", "suspend":
		return a.Data != nil
	}
	return false
}

// rollbackFactory builds the rollback of one declared action; nil means
// no rollback.
type rollbackFactory func(a ir.ActionDecl, logger *slog.Logger) engine.RollbackFunc

var rollbacks = map[string]rollbackFactory{
	"record": func(_ ir.ActionDecl, logger *slog.Logger) engine.RollbackFunc {
		return func(rb engine.Rollback) error {
			logger.Info("action rolled back",
				"action", rb.ActionID,
				"status", string(rb.Result.Status),
			)
			return nil
		}
	},
	"none": func(ir.ActionDecl, *slog.Logger) engine.RollbackFunc {
		return nil
	},
}

// Handlers returns the names of the built-in handlers, sorted.
func Handlers() []string {
	return slices.Sorted(maps.Keys(handlers))
}

// Rollbacks returns the names of the built-in rollbacks, sorted.
func Rollbacks() []string {
	return slices.Sorted(maps.Keys(rollbacks))
}

// dispatchRequest is yielded by dispatch handlers and served by the
// MainSuspend hook installed by NewBuilder.
type dispatchRequest struct {
	Event engine.Event
}

func dispatchHook() engine.MainSuspendHook {
	return engine.MainSuspendHook{
		Resumable: func(s engine.Suspension) bool {
			_, ok := s.Value.(dispatchRequest)
			return ok
		},
		Handle: func(s *engine.SuspendService) (any, error) {
			req := s.Value().(dispatchRequest)
			if err := s.DispatchEvent(req.Event); err != nil {
				return nil, fmt.Errorf("dispatch %s: %w", req.Event.ID, err)
			}
			return nil, nil
		},
	}
}

// dataOf copies declared data so handlers never share the workflow's map.
// A nil map becomes untyped nil.
func dataOf(m map[string]any) any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// newChecker returns a contract checker that knows MapContract.
func newChecker() *engine.TypeChecker {
	c := engine.NewTypeChecker()
	c.Register(MapContract, reflect.TypeFor[map[string]any]())
	return c
}
