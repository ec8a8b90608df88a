// Package cache defines the small key/value cache used for short-lived
// authorization state. Backends live in the memory and redis subpackages.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is a string key/value store with per-entry TTL.
type Cache interface {
	// Get returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value. A zero ttl means the backend default.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Take returns the value and deletes the key atomically, so only one caller
	// ever observes a given entry.
	Take(ctx context.Context, key string) (string, error)

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
