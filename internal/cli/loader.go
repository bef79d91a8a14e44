package cli

import (
	"errors"

	"github.com/roach88/actionbus/internal/compiler"
	"github.com/roach88/actionbus/internal/ir"
)

// LoadResult contains a loaded workflow and its static analysis.
type LoadResult struct {
	Workflow  *ir.Workflow
	FileCount int // Number of CUE files found
	Errors    []compiler.ValidationError
	Cycles    []compiler.CycleWarning
}

// Valid reports whether the workflow passed validation.
func (r *LoadResult) Valid() bool {
	return len(r.Errors) == 0
}

// LoadWorkflow loads, validates and analyzes the workflow in dir.
//
// A directory or CUE problem is returned as a *compiler.LoadError.
// Validation problems are collected in the result; cycle analysis only
// runs on a valid workflow.
func LoadWorkflow(dir string) (*LoadResult, error) {
	w, err := compiler.LoadWorkflow(dir)
	if err != nil {
		return nil, err
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &compiler.LoadError{Code: compiler.ErrCodeScanError, Message: err.Error()}
	}

	result := &LoadResult{
		Workflow:  w,
		FileCount: len(files),
		Errors:    compiler.Validate(w),
		Cycles:    []compiler.CycleWarning{},
	}
	if result.Valid() {
		result.Cycles = compiler.AnalyzeCycles(w)
	}
	return result, nil
}

// loadErrorCode returns the code and message of a load failure.
func loadErrorCode(err error) (code, message string) {
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return le.Code, le.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}
