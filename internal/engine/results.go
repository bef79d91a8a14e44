package engine

import "github.com/roach88/actionbus/internal/ir"

// resultStore maps action ids to their latest stored Result.
//
// Results are immutable once stored; a repeatable action completing again
// replaces its entry. Results survive rollback and action removal and are
// cleared only by Bus.Reset.
type resultStore struct {
	results map[string]ir.Result
	order   []string
}

func newResultStore() *resultStore {
	return &resultStore{results: make(map[string]ir.Result)}
}

// Save stores r for actionID.
func (s *resultStore) Save(actionID string, r ir.Result) {
	if _, ok := s.results[actionID]; !ok {
		s.order = append(s.order, actionID)
	}
	s.results[actionID] = r
}

// Get returns the stored result for actionID.
func (s *resultStore) Get(actionID string) (ir.Result, bool) {
	r, ok := s.results[actionID]
	return r, ok
}

// Exists reports whether actionID has a stored result.
func (s *resultStore) Exists(actionID string) bool {
	_, ok := s.results[actionID]
	return ok
}

// IDs returns action ids in first-completion order.
func (s *resultStore) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of stored results.
func (s *resultStore) Len() int {
	return len(s.results)
}

// Reset forgets every result.
func (s *resultStore) Reset() {
	s.results = make(map[string]ir.Result)
	s.order = nil
}
