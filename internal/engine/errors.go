package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes definition and runtime errors.
type ErrorCode string

const (
	// Definition errors: raised while registering actions, subscriptions,
	// triggers and events.
	ErrCodeActionAlreadyDefined       ErrorCode = "ACTION_ALREADY_DEFINED"
	ErrCodeActionNotDefined           ErrorCode = "ACTION_NOT_DEFINED"
	ErrCodeSubscriptionAlreadyDefined ErrorCode = "SUBSCRIPTION_ALREADY_DEFINED"
	ErrCodeTriggerAlreadyDefined      ErrorCode = "TRIGGER_ALREADY_DEFINED"
	ErrCodeEventNotDefined            ErrorCode = "EVENT_NOT_DEFINED"
	ErrCodeCannotRequirePrivate       ErrorCode = "CANNOT_REQUIRE_PRIVATE_ACTION"
	ErrCodeNotAllowedSealed           ErrorCode = "NOT_ALLOWED_SEALED_ACTION"
	ErrCodeHandlerNotDefined          ErrorCode = "HANDLER_NOT_DEFINED"
	ErrCodeCircularRequire            ErrorCode = "CIRCULAR_REQUIRE"

	// Runtime errors: raised by the scheduling loop.
	ErrCodeReturnValueExists    ErrorCode = "RETURN_VALUE_EXISTS"
	ErrCodeReturnValueNotObject ErrorCode = "RETURN_VALUE_MUST_BE_OBJECT"
	ErrCodeDataNotReceived      ErrorCode = "DATA_FOR_CONTRACT_NOT_RECEIVED"
	ErrCodeIncompatibleContract ErrorCode = "RESULT_INCOMPATIBLE_WITH_CONTRACT"
	ErrCodeCircularCall         ErrorCode = "CIRCULAR_CALL_ACTION"
	ErrCodeHandlerFailed        ErrorCode = "HANDLER_FAILED"
	ErrCodeArgumentNotResolved  ErrorCode = "ARGUMENT_NOT_RESOLVED"
	ErrCodeResultNotExists      ErrorCode = "RESULT_NOT_EXISTS"
	ErrCodeRollbackFailed       ErrorCode = "ROLLBACK_FAILED"
	ErrCodeRunCancelled         ErrorCode = "RUN_CANCELLED"
)

// ErrReentrantRun is returned when a hook calls Run on the bus it is
// running inside.
var ErrReentrantRun = errors.New("bus is already running")

// DefinitionError reports an invalid action, subscription, trigger or
// event definition. Definition errors surface from Builder methods,
// Build and from StateService mutations inside hooks.
type DefinitionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// ActionID is the action being defined (or removed, or looked up).
	ActionID string

	// Subject is the other side of the relation: the required action,
	// the subscription subject or the event id.
	Subject string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("%s: %s (action=%s)", e.Code, e.Message, e.ActionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any DefinitionError with the same code.
func (e *DefinitionError) Is(target error) bool {
	t, ok := target.(*DefinitionError)
	return ok && t.Code == e.Code
}

// RuntimeError represents an error detected while running the bus.
//
// Runtime errors include:
//   - Result validation failures (contract mismatch, unexpected data)
//   - Circular calls: the same (action, status) completed again with no
//     retry budget left
//   - Handler failures: returned errors and recovered panics
//   - Cancellation of the run context
type RuntimeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// ActionID identifies the action being executed, if any.
	ActionID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ActionID != "" {
		msg = fmt.Sprintf("%s (action=%s)", msg, e.ActionID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is matches any RuntimeError with the same code.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	return ok && t.Code == e.Code
}

// CodeOf extracts the code of the first DefinitionError or RuntimeError
// in err's tree. Uses errors.As to handle wrapped and joined errors.
func CodeOf(err error) (ErrorCode, bool) {
	var de *DefinitionError
	if errors.As(err, &de) {
		return de.Code, true
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsCode reports whether any error in err's tree carries code, so codes
// inside errors.Join results (failure plus rollback failure) are found.
func IsCode(err error, code ErrorCode) bool {
	return errors.Is(err, &RuntimeError{Code: code}) || errors.Is(err, &DefinitionError{Code: code})
}

// IsDefinitionError returns true if err is a DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// IsCircularCallError returns true if err reports a circular call.
func IsCircularCallError(err error) bool {
	return IsCode(err, ErrCodeCircularCall)
}

// errorResult marks a handler error that completes the action with
// Error status instead of failing the run.
type errorResult struct {
	err error
}

func (e *errorResult) Error() string { return e.err.Error() }
func (e *errorResult) Unwrap() error { return e.err }

// ErrorResult wraps err so that a handler returning it completes with
// ir.StatusError. Subscriptions on Error fire; the run continues.
func ErrorResult(err error) error {
	if err == nil {
		err = errors.New("action error")
	}
	return &errorResult{err: err}
}

func asErrorResult(err error) (*errorResult, bool) {
	var er *errorResult
	if errors.As(err, &er) {
		return er, true
	}
	return nil, false
}

func errActionAlreadyDefined(id string) *DefinitionError {
	return &DefinitionError{
		Code:     ErrCodeActionAlreadyDefined,
		ActionID: id,
		Message:  fmt.Sprintf("action %q is already defined", id),
	}
}

func errActionNotDefined(id, subject string) *DefinitionError {
	msg := fmt.Sprintf("action %q is not defined", subject)
	return &DefinitionError{
		Code:     ErrCodeActionNotDefined,
		ActionID: id,
		Subject:  subject,
		Message:  msg,
	}
}

func errEventNotDefined(id, event string) *DefinitionError {
	return &DefinitionError{
		Code:     ErrCodeEventNotDefined,
		ActionID: id,
		Subject:  event,
		Message:  fmt.Sprintf("event %q is not defined", event),
	}
}

func errCircularCall(id string, key string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCircularCall,
		ActionID: id,
		Message:  fmt.Sprintf("%s completed again with no retries left", key),
	}
}

func errResultNotExists(id string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeResultNotExists,
		ActionID: id,
		Message:  fmt.Sprintf("result of %q does not exist", id),
	}
}
