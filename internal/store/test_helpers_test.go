package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/actionbus/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a completed run of a two-action workflow.
func createTestRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:       id,
		Workflow: "checkout",
		Status:   ir.RunStatusCompleted,
		Log: ir.LogSnapshot{
			ActionLog: []string{"order.load", "order.charge"},
			MainLog:   []string{"order.load.Success", "order.charge.Success"},
			EventLog:  []string{"order.placed"},
		},
		Trace: []ir.TraceEntry{
			{Seq: 1, Kind: ir.TraceEvent, EventID: "order.placed"},
			{Seq: 2, Kind: ir.TraceDispatch, ActionID: "order.load"},
			{Seq: 3, Kind: ir.TraceComplete, ActionID: "order.load", Status: ir.StatusSuccess},
			{Seq: 4, Kind: ir.TraceDispatch, ActionID: "order.charge"},
			{Seq: 5, Kind: ir.TraceComplete, ActionID: "order.charge", Status: ir.StatusSuccess},
		},
	}
}

// createFailedRun creates a failed run that rolled back two actions.
func createFailedRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:       id,
		Workflow: "checkout",
		Status:   ir.RunStatusFailed,
		Error:    "action order.ship: handler failed",
		Log: ir.LogSnapshot{
			ActionLog: []string{"order.load", "order.charge"},
			MainLog:   []string{"order.load.Success", "order.charge.Success"},
		},
		Trace: []ir.TraceEntry{
			{Seq: 1, Kind: ir.TraceComplete, ActionID: "order.load", Status: ir.StatusSuccess},
			{Seq: 2, Kind: ir.TraceComplete, ActionID: "order.charge", Status: ir.StatusSuccess},
			{Seq: 3, Kind: ir.TraceDispatch, ActionID: "order.ship"},
			{Seq: 4, Kind: ir.TraceRollback, ActionID: "order.charge", Status: ir.StatusSuccess},
			{Seq: 5, Kind: ir.TraceRollback, ActionID: "order.load", Status: ir.StatusSuccess},
		},
	}
}
