package lock

import (
	"context"
	"errors"
	"time"
)

// Locker serializes a critical section identified by key. Implementations
// must release the lock on every exit path, including callback errors.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Mutex is a process-wide lock. It serializes every caller regardless of
// key, which is the intended coarse exclusion region for single-process
// deployments: deal writes for unrelated products contend on it.
type Mutex struct {
	sem chan struct{}
}

// NewMutex constructs a process-wide mutual exclusion lock.
func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// WithLock runs fn while holding the lock. The key and ttl are ignored; an
// in-process lock has no lease to expire. Acquisition honours context
// cancellation.
func (m *Mutex) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	if m == nil || m.sem == nil {
		return errors.New("lock: mutex not initialised")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.sem }()
	return fn(ctx)
}
