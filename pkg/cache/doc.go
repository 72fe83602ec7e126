/*
Package cache provides the small key/TTL store the migration subsystem
uses for its distributed lock and rate limiter: SetNX for "acquire if
absent", Set for unconditional writes, Get, and Delete.

RedisCache backs onto github.com/redis/go-redis/v9 when a cache
endpoint is configured. MemoryCache is an in-process map used directly
when no endpoint is configured, and automatically by FallbackCache when
the primary cache returns an error — satisfying the requirement that a
Cache outage degrade to node-local locking/rate-limiting rather than
failing the operation.
*/
package cache
