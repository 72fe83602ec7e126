package migration

import "errors"

var (
	// ErrLockBusy is returned when another migration already holds the
	// per-tenant lock.
	ErrLockBusy = errors.New("migration: lock busy for this tenant")

	// ErrRateLimited is returned when the caller has already performed
	// this operation within the configured rate-limit window.
	ErrRateLimited = errors.New("migration: rate limit exceeded")

	// ErrValidationFailed wraps package validation failures.
	ErrValidationFailed = errors.New("migration: package validation failed")

	// ErrDecompressionBomb is returned when streaming decompression
	// exceeds the configured ratio or absolute size limit.
	ErrDecompressionBomb = errors.New("migration: decompression bomb detected")

	// ErrConflict is returned by the "fail" conflict policy on the first
	// colliding document id.
	ErrConflict = errors.New("migration: document id already exists")

	// ErrRollbackUnavailable is returned when a rollback is requested for
	// a migration that was not created with create_rollback.
	ErrRollbackUnavailable = errors.New("migration: no rollback snapshot available")

	// ErrBzip2WriteUnsupported is returned when bzip2 is requested as the
	// export's output compression; the standard library's bzip2 package
	// is decode-only.
	ErrBzip2WriteUnsupported = errors.New("migration: bzip2 output compression is not supported, use gzip")
)
