package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/actionbus/internal/ir"
)

// ErrRunNotFound is returned when a run id is not stored.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a stored run without its log and trace.
type RunSummary struct {
	ID         string       `json:"id"`
	Workflow   string       `json:"workflow"`
	StartedSeq int64        `json:"started_seq"`
	Status     ir.RunStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	Digest     string       `json:"digest"`
}

// RollbackEntry is one rolled-back action of a failed run.
type RollbackEntry struct {
	Seq      int64     `json:"seq"`
	ActionID string    `json:"action_id"`
	Status   ir.Status `json:"status"`
}

// ReadRun returns a stored run with its log and trace.
// Returns ErrRunNotFound if the id is not stored.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.RunRecord, error) {
	sum, err := s.ReadSummary(ctx, id)
	if err != nil {
		return ir.RunRecord{}, err
	}

	log, err := s.ReadLog(ctx, id)
	if err != nil {
		return ir.RunRecord{}, err
	}
	trace, err := s.ReadTrace(ctx, id)
	if err != nil {
		return ir.RunRecord{}, err
	}

	return ir.RunRecord{
		ID:       sum.ID,
		Workflow: sum.Workflow,
		Status:   sum.Status,
		Error:    sum.Error,
		Digest:   sum.Digest,
		Log:      log,
		Trace:    trace,
	}, nil
}

// ReadSummary returns a stored run without its log and trace.
// Returns ErrRunNotFound if the id is not stored.
func (s *Store) ReadSummary(ctx context.Context, id string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, started_seq, status, error, digest
		FROM runs
		WHERE id = ?
	`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return sum, nil
}

// ListRuns returns every stored run in start order. An empty workflow
// lists all workflows.
//
// Returns an empty slice (not nil) if no runs are stored.
func (s *Store) ListRuns(ctx context.Context, workflow string) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow, started_seq, status, error, digest
		FROM runs
		WHERE ? = '' OR workflow = ?
		ORDER BY started_seq ASC
	`, workflow, workflow)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadLog returns the execution logs of a run. Every log is non-nil.
func (s *Store) ReadLog(ctx context.Context, runID string) (ir.LogSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, entry
		FROM log_entries
		WHERE run_id = ?
		ORDER BY kind ASC, seq ASC
	`, runID)
	if err != nil {
		return ir.LogSnapshot{}, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	snap := emptyLog()
	for rows.Next() {
		var kind, entry string
		if err := rows.Scan(&kind, &entry); err != nil {
			return ir.LogSnapshot{}, fmt.Errorf("scan log entry: %w", err)
		}
		field, err := logField(&snap, kind)
		if err != nil {
			return ir.LogSnapshot{}, err
		}
		*field = append(*field, entry)
	}
	if err := rows.Err(); err != nil {
		return ir.LogSnapshot{}, fmt.Errorf("iterate log entries: %w", err)
	}
	return snap, nil
}

// ReadTrace returns the trace of a run ordered by seq.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]ir.TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, action_id, event_id, status
		FROM trace_entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace entries: %w", err)
	}
	defer rows.Close()

	trace := []ir.TraceEntry{}
	for rows.Next() {
		var (
			e            ir.TraceEntry
			kind, status string
		)
		if err := rows.Scan(&e.Seq, &kind, &e.ActionID, &e.EventID, &status); err != nil {
			return nil, fmt.Errorf("scan trace entry: %w", err)
		}
		e.Kind = ir.TraceKind(kind)
		e.Status = ir.Status(status)
		trace = append(trace, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace entries: %w", err)
	}
	return trace, nil
}

// ReadRollbacks returns the rollback steps of a run in the order they ran.
func (s *Store) ReadRollbacks(ctx context.Context, runID string) ([]RollbackEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, action_id, status
		FROM rollbacks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rollbacks: %w", err)
	}
	defer rows.Close()

	out := []RollbackEntry{}
	for rows.Next() {
		var (
			rb     RollbackEntry
			status string
		)
		if err := rows.Scan(&rb.Seq, &rb.ActionID, &status); err != nil {
			return nil, fmt.Errorf("scan rollback: %w", err)
		}
		rb.Status = ir.Status(status)
		out = append(out, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollbacks: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (RunSummary, error) {
	var (
		sum    RunSummary
		status string
	)
	if err := row.Scan(&sum.ID, &sum.Workflow, &sum.StartedSeq, &status, &sum.Error, &sum.Digest); err != nil {
		return RunSummary{}, err
	}
	sum.Status = ir.RunStatus(status)
	return sum, nil
}
