package cache

import "time"

// Cache is the narrow surface the migration lock and rate limiter need.
type Cache interface {
	// SetNX sets key to value with the given TTL only if key is absent,
	// reporting whether the set happened.
	SetNX(key, value string, ttl time.Duration) (bool, error)

	// Set unconditionally writes key with the given TTL.
	Set(key, value string, ttl time.Duration) error

	// Get returns the current value of key and whether it was present
	// (a missing or expired key is not an error).
	Get(key string) (string, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
