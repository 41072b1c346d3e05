// Package lock serializes flush and finalize runs per domain.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when another holder owns the key.
var ErrNotAcquired = errors.New("lock not acquired")

// Release gives the lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out exclusive per-key leases.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Noop always succeeds. Used by single-instance deployments.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
