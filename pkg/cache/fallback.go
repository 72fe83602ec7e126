package cache

import (
	"time"

	"github.com/sbdlabs/clustercore/pkg/log"
)

// FallbackCache tries primary first and falls back to an in-process
// MemoryCache whenever primary returns an error. primary may be nil, in
// which case every call goes straight to the fallback.
type FallbackCache struct {
	primary  Cache
	fallback *MemoryCache
}

// NewFallbackCache wraps primary (which may be nil) with an in-process
// fallback.
func NewFallbackCache(primary Cache) *FallbackCache {
	return &FallbackCache{primary: primary, fallback: NewMemoryCache()}
}

func (f *FallbackCache) warn(op string, err error) {
	log.WithComponent("cache").Warn().Err(err).Str("op", op).Msg("cache unavailable, using in-process fallback")
}

func (f *FallbackCache) SetNX(key, value string, ttl time.Duration) (bool, error) {
	if f.primary != nil {
		ok, err := f.primary.SetNX(key, value, ttl)
		if err == nil {
			return ok, nil
		}
		f.warn("setnx", err)
	}
	return f.fallback.SetNX(key, value, ttl)
}

func (f *FallbackCache) Set(key, value string, ttl time.Duration) error {
	if f.primary != nil {
		if err := f.primary.Set(key, value, ttl); err == nil {
			return nil
		} else {
			f.warn("set", err)
		}
	}
	return f.fallback.Set(key, value, ttl)
}

func (f *FallbackCache) Get(key string) (string, bool, error) {
	if f.primary != nil {
		val, ok, err := f.primary.Get(key)
		if err == nil {
			return val, ok, nil
		}
		f.warn("get", err)
	}
	return f.fallback.Get(key)
}

func (f *FallbackCache) Delete(key string) error {
	if f.primary != nil {
		if err := f.primary.Delete(key); err == nil {
			return nil
		} else {
			f.warn("delete", err)
		}
	}
	return f.fallback.Delete(key)
}
