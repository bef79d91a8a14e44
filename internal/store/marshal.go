package store

import (
	"fmt"

	"github.com/roach88/actionbus/internal/ir"
)

// Log kinds as stored in log_entries.kind.
const (
	logAction   = "action"
	logMain     = "main"
	logRepeated = "repeated"
	logEvent    = "event"
	logRetries  = "retries"
)

// logKinds lists the kinds in storage order.
var logKinds = []string{logAction, logMain, logRepeated, logEvent, logRetries}

// logField returns the slice of s holding kind.
func logField(s *ir.LogSnapshot, kind string) (*[]string, error) {
	switch kind {
	case logAction:
		return &s.ActionLog, nil
	case logMain:
		return &s.MainLog, nil
	case logRepeated:
		return &s.RepeatedLog, nil
	case logEvent:
		return &s.EventLog, nil
	case logRetries:
		return &s.RetriesLog, nil
	}
	return nil, fmt.Errorf("unknown log kind %q", kind)
}

// emptyLog returns a snapshot with every log non-nil, the shape ReadLog
// returns for a run with no entries.
func emptyLog() ir.LogSnapshot {
	return ir.LogSnapshot{
		ActionLog:   []string{},
		MainLog:     []string{},
		RepeatedLog: []string{},
		EventLog:    []string{},
		RetriesLog:  []string{},
	}
}

// rollbacksOf extracts rollback steps from a trace, in trace order.
func rollbacksOf(trace []ir.TraceEntry) []RollbackEntry {
	out := []RollbackEntry{}
	for _, e := range trace {
		if e.Kind == ir.TraceRollback {
			out = append(out, RollbackEntry{Seq: e.Seq, ActionID: e.ActionID, Status: e.Status})
		}
	}
	return out
}
