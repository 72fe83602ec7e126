/*
Package registry implements the cluster's node directory: registration,
role changes, and the cached view of who the current leader is.

A Registry owns the cluster_nodes collection in a storage.Store. It never
persists a raw cluster join token — only HashClusterToken's hex digest,
via pkg/security — and emits a pkg/events notification on every
registration, promotion, demotion, and removal so pkg/metrics and the
audit trail stay current without the registry knowing about either.

# Leader caching

current_leader returns the last node Promote set to master and healthy,
without re-running an election. pkg/election is the only package that
calls Promote/Demote as part of its algorithm; operators calling Promote
directly (forced takeover) is the other path, gated by the force flag.

# See Also

  - pkg/quorum — reads ListNodes to compute quorum and raise alerts
  - pkg/election — drives Promote/Demote as the result of a vote
  - pkg/storage — cluster_nodes persistence
*/
package registry
