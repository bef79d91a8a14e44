package engine

import "github.com/roach88/actionbus/internal/ir"

// callGuard records completions in the execution log and detects
// circular calls.
//
// A circular call happens when the same (action, status) pair completes
// twice in a run, e.g. a repeatable action re-requested by its own
// trigger, or a cyclic hook dispatching the event an action listens on
// after every iteration:
//
//	A completes → trigger requests B → B completes → trigger requests A
//	→ A completes again with the same status ← CIRCULAR
//
// The guard checks the main log for the pair. With per-action retry
// budget left the repeat is tolerated and logged as usual. Without it
// the repeat lands in the repeated and retries logs and is reported as
// circular; the bus raises CircularCallAction unless circular calls are
// allowed.
//
// CRITICAL: detection reads the main log, so when the logs are rings a
// pair evicted from the main log is no longer seen as a repeat.
type callGuard struct {
	log     *executionLog
	budgets map[string]*RetryBudget
}

func newCallGuard(log *executionLog) *callGuard {
	return &callGuard{
		log:     log,
		budgets: make(map[string]*RetryBudget),
	}
}

// Record logs a completion and reports whether it is a circular call.
func (g *callGuard) Record(a *Action, status ir.Status) (circular bool) {
	key := ir.LogKey(a.ID, status)

	if g.log.main.Contains(key) && !g.budget(a).Consume() {
		g.log.repeated.Push(key)
		g.log.retries.Push(key)
		circular = true
	} else {
		g.log.main.Push(key)
	}

	g.log.action.Push(a.ID)
	return circular
}

func (g *callGuard) budget(a *Action) *RetryBudget {
	b, ok := g.budgets[a.ID]
	if !ok {
		b = NewRetryBudget(a.Retries)
		g.budgets[a.ID] = b
	}
	return b
}

// Clear forgets every retry budget.
func (g *callGuard) Clear() {
	g.budgets = make(map[string]*RetryBudget)
}
