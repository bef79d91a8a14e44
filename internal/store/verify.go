package store

import (
	"context"
	"fmt"

	"github.com/roach88/actionbus/internal/ir"
)

// DigestMismatchError reports a stored log that no longer hashes to the
// digest recorded with its run.
type DigestMismatchError struct {
	RunID    string
	Stored   string
	Computed string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("run %s: stored digest %s does not match log digest %s", e.RunID, e.Stored, e.Computed)
}

// VerifyRun recomputes the log digest of a stored run and compares it to
// the recorded digest.
func (s *Store) VerifyRun(ctx context.Context, runID string) error {
	sum, err := s.ReadSummary(ctx, runID)
	if err != nil {
		return err
	}
	log, err := s.ReadLog(ctx, runID)
	if err != nil {
		return fmt.Errorf("verify run %s: %w", runID, err)
	}
	computed, err := ir.LogDigest(log)
	if err != nil {
		return fmt.Errorf("verify run %s: %w", runID, err)
	}
	if computed != sum.Digest {
		return &DigestMismatchError{RunID: runID, Stored: sum.Digest, Computed: computed}
	}
	return nil
}

// LastRunSeq returns the highest started_seq, or 0 for an empty store.
func (s *Store) LastRunSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(started_seq), 0) FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last run seq: %w", err)
	}
	return seq, nil
}
