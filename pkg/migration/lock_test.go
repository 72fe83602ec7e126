package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/cache"
)

func TestTenantLock_SecondAcquireFailsUntilReleased(t *testing.T) {
	lock := NewTenantLock(cache.NewMemoryCache())

	ok, err := lock.Acquire("acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire("acme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release("acme"))

	ok, err = lock.Acquire("acme")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTenantLock_SeparateTenantsDoNotContend(t *testing.T) {
	lock := NewTenantLock(cache.NewMemoryCache())

	ok, err := lock.Acquire("acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire("globex")
	require.NoError(t, err)
	assert.True(t, ok)
}
