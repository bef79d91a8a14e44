package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/actionbus/internal/ir"
)

// WriteRun inserts a finished run with its logs, trace and rollbacks in
// one transaction.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a run id that is
// already stored is silently ignored and its entries are left untouched.
// Returns whether the run was inserted.
//
// An empty Digest is computed from the log.
func (s *Store) WriteRun(ctx context.Context, rec ir.RunRecord) (inserted bool, err error) {
	if rec.ID == "" {
		return false, fmt.Errorf("write run: id is required")
	}
	if rec.Digest == "" {
		if rec.Digest, err = ir.LogDigest(rec.Log); err != nil {
			return false, fmt.Errorf("write run %s: %w", rec.ID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run %s: begin tx: %w", rec.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	// Logical start order: next value after the highest stored seq
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(started_seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return false, fmt.Errorf("write run %s: next seq: %w", rec.ID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, workflow, started_seq, status, error, digest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Workflow,
		seq,
		string(rec.Status),
		rec.Error,
		rec.Digest,
	)
	if err != nil {
		return false, fmt.Errorf("write run %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run %s: rows affected: %w", rec.ID, err)
	}
	if n == 0 {
		return false, nil
	}

	if err := writeLog(ctx, tx, rec.ID, rec.Log); err != nil {
		return false, fmt.Errorf("write run %s: %w", rec.ID, err)
	}
	if err := writeTrace(ctx, tx, rec.ID, rec.Trace); err != nil {
		return false, fmt.Errorf("write run %s: %w", rec.ID, err)
	}
	if err := writeRollbacks(ctx, tx, rec.ID, rollbacksOf(rec.Trace)); err != nil {
		return false, fmt.Errorf("write run %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run %s: commit: %w", rec.ID, err)
	}
	return true, nil
}

func writeLog(ctx context.Context, tx *sql.Tx, runID string, snap ir.LogSnapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_entries (run_id, kind, seq, entry)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare log entries: %w", err)
	}
	defer stmt.Close()

	for _, kind := range logKinds {
		entries, err := logField(&snap, kind)
		if err != nil {
			return err
		}
		for i, entry := range *entries {
			if _, err := stmt.ExecContext(ctx, runID, kind, i, entry); err != nil {
				return fmt.Errorf("insert %s log entry %d: %w", kind, i, err)
			}
		}
	}
	return nil
}

func writeTrace(ctx context.Context, tx *sql.Tx, runID string, trace []ir.TraceEntry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_entries (run_id, seq, kind, action_id, event_id, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare trace entries: %w", err)
	}
	defer stmt.Close()

	for _, e := range trace {
		if _, err := stmt.ExecContext(ctx, runID, e.Seq, string(e.Kind), e.ActionID, e.EventID, string(e.Status)); err != nil {
			return fmt.Errorf("insert trace entry %d: %w", e.Seq, err)
		}
	}
	return nil
}

func writeRollbacks(ctx context.Context, tx *sql.Tx, runID string, rollbacks []RollbackEntry) error {
	for _, rb := range rollbacks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rollbacks (run_id, seq, action_id, status)
			VALUES (?, ?, ?, ?)
		`, runID, rb.Seq, rb.ActionID, string(rb.Status))
		if err != nil {
			return fmt.Errorf("insert rollback %s: %w", rb.ActionID, err)
		}
	}
	return nil
}
