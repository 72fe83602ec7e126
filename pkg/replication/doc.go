/*
Package replication implements the Replication Engine (C4): capturing
Store mutations on the leader, dispatching them to healthy replicas over
HTTP, applying them exactly once on every node, and resolving conflicts
between concurrently-modified documents.

# Capture

Engine.Start subscribes to storage.Store.Watch. Every mutation on a
non-internal collection is synthesized into a types.ReplicationEvent with
the next per-node monotonic sequence number, persisted to replication_log,
and handed to the dispatcher. CaptureEvent exposes the same path for
application code that needs to replicate something out-of-band.

# Dispatch

A background loop (same ticker+stopCh shape as pkg/quorum's sweeper)
drains pending events in sequence order, batches of up to 100, and POSTs
each to every healthy target's replication/apply endpoint using the
cluster token and, when a CertAuthority is configured, mutual TLS.

# Apply

HandleApply is called by the cluster HTTP surface on every node. It is
idempotent by event_id via the replication_apply_log bucket.

# Conflict resolution

conflict.go implements a pluggable Resolver registry: last-write-wins
(default), manual (persists a ReplicationConflict for operator review),
and collection-scoped custom mergers with LWW fallback.

# See Also

  - pkg/storage — Watch, replication_log, replication_apply_log
  - pkg/registry — healthy node set used to compute event targets
  - pkg/security — cluster token validation on apply
*/
package replication
