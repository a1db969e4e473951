package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockFileName is created in the data directory.
const lockFileName = "build.lock"

// lockRetryDelay is how often a blocking Lock polls the file lock.
const lockRetryDelay = 100 * time.Millisecond

// BuildLock serializes index builds across processes sharing a data
// directory. It is not safe for concurrent use; each builder holds its own.
type BuildLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewBuildLock creates the lock for a data directory.
func NewBuildLock(dataDir string) *BuildLock {
	path := filepath.Join(dataDir, lockFileName)
	return &BuildLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *BuildLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire build lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire build lock %s", l.path)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without blocking. It returns false when another
// process holds it.
func (l *BuildLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire build lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Unlocking an unlocked BuildLock is a no-op.
func (l *BuildLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release build lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *BuildLock) Path() string { return l.path }

// IsLocked reports whether this BuildLock holds the lock.
func (l *BuildLock) IsLocked() bool { return l.locked }
