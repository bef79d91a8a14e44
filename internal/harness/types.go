package harness

import "github.com/roach88/actionbus/internal/ir"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion holds.
	Pass bool `json:"pass"`

	// RunID is the id the bus assigned to the run.
	RunID string `json:"run_id"`

	// ErrorCode is the engine error code of a failed build, dispatch or
	// run. Empty when the run succeeded.
	ErrorCode string `json:"error_code,omitempty"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// Log and Trace are read back from the store after the run.
	Log   ir.LogSnapshot  `json:"log"`
	Trace []ir.TraceEntry `json:"trace"`

	// Digest is the stored log digest.
	Digest string `json:"digest"`

	// Results holds every externally visible result by action id.
	Results map[string]ir.Result `json:"results,omitempty"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []ir.TraceEntry{},
		Results: make(map[string]ir.Result),
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
