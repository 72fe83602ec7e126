package migration

import (
	"time"

	"github.com/sbdlabs/clustercore/pkg/cache"
)

const lockTTL = 3600 * time.Second

// TenantLock enforces one migration per tenant at a time.
type TenantLock struct {
	cache cache.Cache
}

// NewTenantLock wraps c (typically a cache.FallbackCache) as the
// migration lock's backing store.
func NewTenantLock(c cache.Cache) *TenantLock {
	return &TenantLock{cache: c}
}

func lockKey(tenantID string) string {
	if tenantID == "" {
		tenantID = "default"
	}
	return "migration_lock:" + tenantID
}

// Acquire attempts to take the lock for tenantID, returning false (not an
// error) if another migration already holds it.
func (l *TenantLock) Acquire(tenantID string) (bool, error) {
	return l.cache.SetNX(lockKey(tenantID), time.Now().UTC().Format(time.RFC3339Nano), lockTTL)
}

// Release frees the lock for tenantID.
func (l *TenantLock) Release(tenantID string) error {
	return l.cache.Delete(lockKey(tenantID))
}
