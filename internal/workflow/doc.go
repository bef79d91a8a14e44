// Package workflow assembles a compiled ir.Workflow into a runnable bus.
//
// Declarative workflows cannot carry Go code, so every action names a
// built-in handler and, optionally, a built-in rollback:
//
//	noop      completes with Success and no data
//	emit      completes with Success carrying the declared data
//	fail      completes with Fail carrying the declared data
//	error     completes with Error status
//	panic     panics, which fails the run
//	suspend   suspends with the declared data and returns the resume value
//	dispatch  dispatches the declared event, then completes with Success
//
//	record    logs the rolled-back action
//	none      no rollback
//
// Actions declaring data without a contract get the "map" contract, which
// matches map[string]any.
package workflow
