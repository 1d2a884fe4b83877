// Package lock implements the process-wide run lock. A marker file on
// shared storage guards against two concurrent scheduler-triggered runs;
// the filesystem is the only mutual-exclusion primitive that behaves
// consistently across the deployment targets.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrHeld is returned by Acquire when the lock marker already exists.
// Lock contention is not an error condition for the caller: the run exits
// cleanly, conveying "already running" through its exit code.
var ErrHeld = errors.New("sync lock already held")

// Recovery resets externally tracked in-progress scheduling records that
// started before the given deadline. Implemented by store.Store. This is a
// recovery action on release, not a correctness requirement of the lock.
type Recovery interface {
	ResetStaleRuns(ctx context.Context, startedBefore time.Time) (int, error)
}

// Manager guards the sync pipeline with a single marker file.
type Manager struct {
	path     string
	recovery Recovery
	now      func() time.Time
}

// New creates a lock manager for the given marker path. recovery may be
// nil when no schedule records are tracked.
func New(path string, recovery Recovery) *Manager {
	return &Manager{path: path, recovery: recovery, now: time.Now}
}

// NewAt is like New but with an injected time source. Used in tests.
func NewAt(path string, recovery Recovery, now func() time.Time) *Manager {
	return &Manager{path: path, recovery: recovery, now: now}
}

// Acquire atomically creates the lock marker. Fails with ErrHeld when the
// marker already exists; O_EXCL closes the check-then-create race.
func (m *Manager) Acquire(runToken string) error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrHeld
		}
		return fmt.Errorf("create lock marker: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %d\n", runToken, m.now().Unix()); err != nil {
		return fmt.Errorf("write lock marker: %w", err)
	}
	return nil
}

// Release removes the lock marker if it is at least minAge old.
//
// Returns false without error when no marker exists or the marker is too
// fresh - refusing to release a young lock defends against an accidental
// double release by a second process. On successful release any stale
// run-schedule record older than minAge is reset so a stuck run does not
// permanently block future triggers.
func (m *Manager) Release(ctx context.Context, minAge time.Duration) (bool, error) {
	info, err := os.Stat(m.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock marker: %w", err)
	}

	age := m.now().Sub(info.ModTime())
	if age < minAge {
		slog.Warn("lock marker not removed, younger than required age",
			"age", age, "required", minAge)
		return false, nil
	}

	if m.recovery != nil {
		deadline := m.now().Add(-minAge)
		reset, err := m.recovery.ResetStaleRuns(ctx, deadline)
		if err != nil {
			slog.Error("resetting stale run records failed", "error", err)
		} else if reset > 0 {
			slog.Info("reset stale run records", "count", reset)
		}
	}

	if err := os.Remove(m.path); err != nil {
		return false, fmt.Errorf("remove lock marker: %w", err)
	}
	return true, nil
}
