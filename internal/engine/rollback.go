package engine

import (
	"context"
	"fmt"

	"github.com/roach88/actionbus/internal/ir"
)

// rollbackKind labels why a rollback ran.
type rollbackKind string

const (
	rollbackFailure   rollbackKind = "failure"
	rollbackVoluntary rollbackKind = "voluntary"
)

// rollback walks the action log newest to oldest and calls each
// completed action's rollback with its stored result. step == 0 covers
// the whole log, otherwise the newest step entries. Actions without a
// rollback are skipped. Results are kept.
//
// The first rollback error stops the walk.
func (b *Bus) rollback(ctx context.Context, step int, kind rollbackKind) error {
	entries := b.log.action.Items()
	if step > 0 && step < len(entries) {
		entries = entries[len(entries)-step:]
	}

	b.logger.Debug("rolling back",
		"run_id", b.runID,
		"kind", string(kind),
		"entries", len(entries),
	)

	for i := len(entries) - 1; i >= 0; i-- {
		id := entries[i]
		a, ok := b.completed[id]
		if !ok || !a.hasRollback() {
			continue
		}

		fn, err := b.resolveRollback(a)
		if err != nil {
			return err
		}

		res, _ := b.results.Get(id)
		rb := Rollback{Context: ctx, ActionID: id, Result: res, Argument: b.arguments[id]}
		if err := callRollback(fn, rb); err != nil {
			return &RuntimeError{
				Code:     ErrCodeRollbackFailed,
				ActionID: id,
				Message:  "rollback failed",
				Err:      err,
			}
		}

		b.record(ir.TraceRollback, id, "", res.Status)
		b.metrics.rolledBack(kind)
		b.logger.Debug("action rolled back", "run_id", b.runID, "action", id)
	}
	return nil
}

// callRollback runs fn, converting a panic into an error.
func callRollback(fn RollbackFunc, rb Rollback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback panicked: %v", r)
		}
	}()
	return fn(rb)
}

func (b *Bus) resolveRollback(a *Action) (RollbackFunc, error) {
	if a.Rollback != nil {
		return a.Rollback, nil
	}

	c := b.newContainer(a)
	v, err := c.Get(a.RollbackType)
	if err != nil {
		return nil, &RuntimeError{
			Code:     ErrCodeRollbackFailed,
			ActionID: a.ID,
			Message:  "resolve rollback",
			Err:      err,
		}
	}
	switch r := v.(type) {
	case RollbackFunc:
		return r, nil
	case func(Rollback) error:
		return r, nil
	case RollbackHandler:
		return r.Rollback, nil
	}
	return nil, &RuntimeError{
		Code:     ErrCodeRollbackFailed,
		ActionID: a.ID,
		Message:  fmt.Sprintf("rollback type %q resolved to %T, which is not a rollback", a.RollbackType, v),
	}
}
