package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFile is the name of the lock file in the key home directory.
const LockFile = ".kdt.lock"

const lockRetryDelay = 50 * time.Millisecond

// Lock is an exclusive advisory lock on a key home directory, held from
// loading the databases until they are saved.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock locks dir, waiting until ctx is done.
func AcquireLock(ctx context.Context, dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	fl := flock.New(filepath.Join(dir, LockFile))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks the directory.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
