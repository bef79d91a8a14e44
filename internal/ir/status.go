package ir

import "fmt"

// Status is the outcome of a completed action.
type Status string

const (
	// StatusSuccess means the handler finished normally.
	StatusSuccess Status = "Success"

	// StatusFail means the handler reported a business failure.
	// Alternates of the action are tried on Fail.
	StatusFail Status = "Fail"

	// StatusError means the action could not produce a result
	// (unresolved argument, handler returned an error result).
	StatusError Status = "Error"
)

// Statuses lists every valid status in declaration order.
var Statuses = []Status{StatusSuccess, StatusFail, StatusError}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFail, StatusError:
		return true
	}
	return false
}

// ParseStatus converts a declared status string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q, must be one of: Success, Fail, Error", s)
	}
	return st, nil
}

// LogKey is the main-log entry for an action completing with a status.
// Format: "<actionID>.<status>".
func LogKey(actionID string, status Status) string {
	return actionID + "." + string(status)
}
