package migration

import (
	"fmt"
	"time"

	"github.com/sbdlabs/clustercore/pkg/cache"
)

const rateLimitKeyTTL = 24 * time.Hour

const defaultLimitHours = 1

// RateLimiter rejects a repeated attempt at the same operation by the
// same user within a configurable window (default one hour).
type RateLimiter struct {
	cache cache.Cache
	limit time.Duration
}

// NewRateLimiter creates a limiter with the given window in hours; a
// non-positive value falls back to the one-hour default.
func NewRateLimiter(c cache.Cache, limitHours int) *RateLimiter {
	if limitHours <= 0 {
		limitHours = defaultLimitHours
	}
	return &RateLimiter{cache: c, limit: time.Duration(limitHours) * time.Hour}
}

func rateLimitKey(userID, op string) string {
	return fmt.Sprintf("migration_rate_limit:%s:%s", userID, op)
}

// Allow reports whether userID may attempt op right now.
func (rl *RateLimiter) Allow(userID, op string) (bool, error) {
	raw, found, err := rl.cache.Get(rateLimitKey(userID, op))
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true, nil
	}
	return time.Since(last) >= rl.limit, nil
}

// Record marks userID as having just attempted op, called only after the
// attempt succeeds (an attempt blocked for another reason, e.g. a busy
// lock, does not consume the rate-limit window).
func (rl *RateLimiter) Record(userID, op string) error {
	return rl.cache.Set(rateLimitKey(userID, op), time.Now().UTC().Format(time.RFC3339Nano), rateLimitKeyTTL)
}
