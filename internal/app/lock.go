package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ApplyLockName is the lock file created in the base directory while apply runs.
const ApplyLockName = "apply.lock"

// ErrApplyInProgress means another process holds the apply lock.
var ErrApplyInProgress = errors.New("another apply is in progress")

// applyLock serializes apply runs across processes sharing a base directory.
type applyLock struct {
	flock *flock.Flock
}

func newApplyLock(baseDir string) *applyLock {
	return &applyLock{flock: flock.New(filepath.Join(baseDir, ApplyLockName))}
}

// TryLock acquires the lock without blocking. It returns ErrApplyInProgress
// when the lock is held elsewhere.
func (l *applyLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring apply lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock file %s)", ErrApplyInProgress, l.flock.Path())
	}
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *applyLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("releasing apply lock: %w", err)
	}
	return nil
}
