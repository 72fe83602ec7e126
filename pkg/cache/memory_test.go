package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetNX_OnlyFirstSucceeds(t *testing.T) {
	c := NewMemoryCache()

	ok, err := c.SetNX("k", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX("k", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	val, found, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", val)
}

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	c := NewMemoryCache()
	_, err := c.SetNX("k", "v1", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, found, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := c.SetNX("k", "v2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_SetOverwrites(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set("k", "v1", time.Minute))
	require.NoError(t, c.Set("k", "v2", time.Minute))

	val, found, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", val)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set("k", "v1", time.Minute))
	require.NoError(t, c.Delete("k"))

	_, found, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, found)
}

type erroringCache struct{ err error }

func (e *erroringCache) SetNX(string, string, time.Duration) (bool, error) { return false, e.err }
func (e *erroringCache) Set(string, string, time.Duration) error          { return e.err }
func (e *erroringCache) Get(string) (string, bool, error)                 { return "", false, e.err }
func (e *erroringCache) Delete(string) error                              { return e.err }

func TestFallbackCache_UsesFallbackWhenPrimaryErrors(t *testing.T) {
	primary := &erroringCache{err: assert.AnError}
	fc := NewFallbackCache(primary)

	ok, err := fc.SetNX("k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	val, found, err := fc.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", val)
}

func TestFallbackCache_NilPrimaryGoesStraightToFallback(t *testing.T) {
	fc := NewFallbackCache(nil)

	ok, err := fc.SetNX("k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
