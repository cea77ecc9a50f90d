package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every backing store failure. Callers treat it as a
	// cache miss.
	ErrUnavailable = errors.New("cache unavailable")

	// ErrNotFound is returned by Store.Get for a missing or expired key
	ErrNotFound = errors.New("cache key not found")
)

// Store is the backing key/value store of a TaggedCache. Implementations must
// make IncrWithExpiry atomic, since it doubles as the shared rate limit counter.
type Store interface {
	// Get returns the raw value of key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with a TTL; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys, ignoring missing ones
	Delete(ctx context.Context, keys ...string) error

	// IncrWithExpiry increments a counter, starting a window of the given
	// length on first use, and returns the new count and remaining TTL
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	// SAdd adds members to the set at key
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns the members of the set at key
	SMembers(ctx context.Context, key string) ([]string, error)

	// SRem removes members from the set at key
	SRem(ctx context.Context, key string, members ...string) error

	// Expire sets a TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key; zero for a missing key or
	// one without expiry
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys returns keys matching a Redis-style glob; '/' is an ordinary character
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}
