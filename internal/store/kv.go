package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("store: key not found")

// KV is the key-value abstraction all pulse state lives behind. Everything
// mutable is external; the engine itself holds no shared in-process state.
//
// Implementations must make Incr a single atomic increment so the daily call
// counter is safe under concurrent callers.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. ttl == 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the integer value at key (creating it at 1)
	// and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a ttl on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// LPush prepends values to the list at key. Lists never expire; their
	// consumers own trimming.
	LPush(ctx context.Context, key string, values ...string) error

	// LRange returns list elements from start to stop inclusive, newest
	// first. stop == -1 means "through the end".
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Delete removes a key (value or list).
	Delete(ctx context.Context, key string) error

	// Close releases underlying resources.
	Close() error
}
