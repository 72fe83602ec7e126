/*
Package migration implements the export/import data-migration pipeline
(C6): packaging a set of collections into a single checksummed,
optionally compressed and encrypted file, validating and importing such
a file elsewhere, rolling an import back, and streaming a direct
transfer between two live instances.

# File-based flow

Export (export.go) snapshots collections into a types.MigrationPackage,
computes a SHA-256 checksum per collection plus a global checksum over
their concatenation, then serializes/compresses/optionally encrypts it
to a single file alongside a types.MigrationRecord.

Import (import.go) validates an uploaded package (checksum, shape,
streaming-decompression-bomb detection), optionally snapshots a
rollback file, then applies each collection's documents under a
skip/overwrite/fail conflict policy. Rollback (rollback.go) restores a
prior import from its snapshot.

# Direct transfer

Transfer (transfer.go) streams collections directly between two
authenticated instances without an intermediate file, with progress
persisted and broadcast, and pause/resume/cancel support.

# Coordination

Export and import acquire a per-tenant lock (lock.go) and pass a
per-user rate limit (ratelimit.go), both backed by pkg/cache with an
in-process fallback; rollback and direct transfer take neither. Export,
import and rollback append a structured record to the audit trail
(audit.go, storage.AppendAuditRecord).

# See Also

  - pkg/storage — MigrationRecord/Transfer/RemoteInstance/ScheduledMigration
    persistence and the generic document store collections operate on
  - pkg/security — AES-256-GCM package encryption
  - pkg/cache — distributed lock / rate limiter backing store
*/
package migration
