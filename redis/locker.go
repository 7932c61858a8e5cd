package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

// DefaultLockExpiry bounds how long a crashed holder keeps a subject locked.
const DefaultLockExpiry = 2 * time.Second

// Locker serializes vote writers on one subject across processes with a
// Redis mutex.
type Locker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// Locker returns a Locker whose locks expire after expiry.
func (r *Redis) Locker(expiry time.Duration) *Locker {
	if expiry <= 0 {
		expiry = DefaultLockExpiry
	}
	return &Locker{
		rs:     redsync.New(goredis.NewPool(r.cli)),
		expiry: expiry,
	}
}

// Lock acquires the mutex named key and returns its release function.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(32),
		redsync.WithRetryDelay(25*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		// An expired lock was already released.
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}, nil
}
