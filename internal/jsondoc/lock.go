package jsondoc

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

type lockMode int

const (
	shared lockMode = iota
	exclusive
)

func (m lockMode) String() string {
	if m == exclusive {
		return "exclusive"
	}
	return "shared"
}

// lock acquires the document lock in the given mode, waiting until ctx is
// done. Each call opens its own handle on the lock file: flock(2) locks belong
// to the open file description, so two goroutines of this process contend
// exactly like two processes do.
func (s *Store[T]) lock(ctx context.Context, mode lockMode) (func(), error) {
	start := time.Now()
	fl := flock.New(s.lockPath)
	var ok bool
	var err error
	if mode == exclusive {
		ok, err = fl.TryLockContext(ctx, s.retryDelay)
	} else {
		ok, err = fl.TryRLockContext(ctx, s.retryDelay)
	}
	s.metrics.observeLockWait(s.name, mode, time.Since(start))
	if err == nil && !ok {
		err = errLockNotAcquired
	}
	if err != nil {
		_ = fl.Close()
		return nil, &StorageError{Op: "lock", Path: s.path, Err: err}
	}
	return func() {
		_ = fl.Unlock()
	}, nil
}
