package engine

// RetryBudget tracks how many identical (action, status) completions an
// action may still repeat within one run.
//
// Each action gets its own budget per run, sized from Action.Retries. A
// repeat that finds budget left consumes one unit and is recorded in the
// main log like a first completion; a repeat with no budget left is a
// circular call.
type RetryBudget struct {
	limit int
	used  int
}

// NewRetryBudget creates a budget allowing limit repeats.
func NewRetryBudget(limit int) *RetryBudget {
	if limit < 0 {
		limit = 0
	}
	return &RetryBudget{limit: limit}
}

// Consume takes one unit of budget. Returns false once the budget is
// exhausted; exhausted budgets stay exhausted for the rest of the run.
func (b *RetryBudget) Consume() bool {
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}
