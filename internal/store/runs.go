package store

import (
	"context"
	"fmt"
	"time"
)

// BeginRun records a run-schedule entry for the given run token.
func (s *Store) BeginRun(ctx context.Context, runToken string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_token, started_at) VALUES (?, ?)
		ON CONFLICT(run_token) DO NOTHING
	`, runToken, startedAt.Unix())
	if err != nil {
		return fmt.Errorf("begin run %s: %w", runToken, err)
	}
	return nil
}

// FinishRun marks a run-schedule entry as finished.
func (s *Store) FinishRun(ctx context.Context, runToken string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE run_token = ?`,
		finishedAt.Unix(), runToken)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runToken, err)
	}
	return nil
}

// ResetStaleRuns clears unfinished run records that started before the
// given deadline. A crashed run must not keep looking in-progress forever
// and block future scheduler triggers. Returns the number of records reset.
func (s *Store) ResetStaleRuns(ctx context.Context, startedBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE finished_at IS NULL AND started_at <= ?`,
		startedBefore.Unix())
	if err != nil {
		return 0, fmt.Errorf("reset stale runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset stale runs: rows affected: %w", err)
	}
	return int(n), nil
}
