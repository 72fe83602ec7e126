/*
Package quorum runs the cluster's health and quorum monitor: a heartbeat
writer and health sweeper, quorum calculation, split-brain detection and
resolution, and the alert rules table.

Every node runs both loops. The heartbeat writer touches only its own
cluster_nodes row; the health sweeper scans the whole collection and so
observes the same stale rows on every node, making unhealthy-marking and
split-brain resolution convergent without any node being distinguished.

# See Also

  - pkg/registry — node CRUD and Promote/Demote that resolution calls
  - pkg/election — picks a leader from cluster_nodes itself; it does not
    read Monitor's state
  - pkg/events, pkg/metrics — alert and status consumers
*/
package quorum
