/*
Package election implements the cluster's leader elector: picking the
master from among healthy candidates, and the failover loop that
re-promotes a replica when the current master disappears.

Elector.Start runs a single background loop per node. Each tick it
verifies the cached leader is still healthy — re-electing immediately if
not — and otherwise re-runs the election once a randomized timeout
in [election_timeout_min, election_timeout_max] has elapsed, which keeps
nodes from all calling an election in the same instant.

# See Also

  - pkg/registry — Promote/Demote and the leader cache this package drives
  - pkg/quorum — supplies the healthy-node view elections are computed over
*/
package election
