// Package kv abstracts the shared key-value store that holds sessions,
// verification codes and rate windows. Two implementations exist: Redis for
// deployments and an in-memory store for single-instance or test use. Both
// honour the same TTL and optimistic-update semantics.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("kv: not found")
	// ErrConflict signals that a concurrent writer committed between the
	// read and the conditional write of an Update attempt.
	ErrConflict = errors.New("kv: conflict")
)

// Store is the coordination point shared by all request handlers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores the value only when the key is absent and reports whether
	// the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	// Incr atomically increments an integer counter, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Update performs a single optimistic check-and-set attempt: read the
	// current value, apply mutate, and write the result only if no other
	// writer committed in between. A mutate error aborts without writing and
	// propagates unchanged. Callers own the retry loop around ErrConflict.
	Update(ctx context.Context, key string, ttl time.Duration, mutate func(current []byte) ([]byte, error)) ([]byte, error)
}
