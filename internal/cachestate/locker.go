package cachestate

import (
	"context"
	"time"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// DefaultLockTimeout bounds how long a caller waits for another holder.
const DefaultLockTimeout = 2 * time.Second

// ErrLockTimeout signals that another actor owns the entry right now. It does not
// distinguish a hung holder from a slow one.
var ErrLockTimeout = ferrors.LockError("cache entry lock acquisition timed out").Build()

// Locker provides exclusive, cross-process ownership of a fingerprint.
type Locker interface {
	// Acquire waits at most timeout for the lock on key.
	// It returns ErrLockTimeout when the wait expires.
	Acquire(ctx context.Context, key string, timeout time.Duration) (Lock, error)
	// Held reports whether the LOCK marker for key is currently present.
	Held(ctx context.Context, key string) (bool, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Lock is an acquired lock. Release must be idempotent.
type Lock interface {
	Release() error
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nextWait returns the poll sleep bounded by the remaining time to deadline.
func nextWait(poll time.Duration, deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining < poll {
		return remaining
	}
	return poll
}
