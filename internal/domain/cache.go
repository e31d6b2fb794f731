package domain

import (
	"context"
	"time"
)

// SignalBus provides pub/sub messaging between the core's run loops:
// trigger events arrive on "triggers", accepted opportunities are published
// on "arbitrage".
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locking, used to serialize trigger
// handling per plan across processes.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned unlock
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
