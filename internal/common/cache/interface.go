package cache

import (
	"context"
	"time"
)

// Cache defines the key-value, hash and list operations the dispatcher
// relies on. Redis is the production implementation.
type Cache interface {
	BasicOps
	HashOps
	ListOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key.
	// A missing key yields an empty string and a nil error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist (atomic operation)
	// Returns true if the key was set, false if it already existed
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists returns the number of the given keys that exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Incr increments the integer value of a key by 1
	Incr(ctx context.Context, key string) (int64, error)
}

// HashOps defines hash operations
type HashOps interface {
	// HSetNX sets field only if it does not exist yet
	HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error)

	// HGetAll returns all fields and values of a hash
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HKeys returns all field names of a hash
	HKeys(ctx context.Context, key string) ([]string, error)

	// HDrain atomically returns every field of the hash and deletes the hash.
	// Concurrent callers never observe the same field.
	HDrain(ctx context.Context, key string) (map[string]string, error)
}

// ListOps defines list operations
type ListOps interface {
	// RPush appends values to a list
	RPush(ctx context.Context, key string, values ...interface{}) error

	// BLPop blocks until an element is available on one of the keys or the
	// timeout elapses. A timeout yields a nil slice and a nil error.
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error)
}
