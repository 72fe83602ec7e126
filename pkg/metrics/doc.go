/*
Package metrics provides Prometheus metrics collection and exposition for
clustercore.

Metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for scraping. The Collector
periodically samples a running Runtime (see pkg/cluster) and keeps
NodesTotal, AlertsActive and IsLeader current; the rest of the metrics
are updated inline by the components that own them (pkg/election counts
ElectionsTotal, pkg/router sets CircuitState and RoutedRequestsTotal,
pkg/replication sets ReplicationLagSeconds, pkg/migration sets
MigrationBytesTotal). QuorumHolds, APIRequestsTotal and
APIRequestDuration are registered but not updated by any component.

# Metric families

  - clustercore_nodes_total{role,status} — Registry snapshot
  - clustercore_quorum_holds, clustercore_alerts_active{severity} — Quorum Monitor
    (alerts sampled by the Collector)
  - clustercore_is_leader, clustercore_elections_total — Leader Elector
  - clustercore_replication_lag_seconds{target_node},
    clustercore_replication_events_total{status},
    clustercore_replication_conflicts_total — Replication Engine
  - clustercore_circuit_state{node}, clustercore_routed_requests_total{outcome} — Router
  - clustercore_migration_bytes_total{op}, clustercore_migrations_total{type,status} — Migration Pipeline
  - clustercore_api_requests_total{method,status} — HTTP surfaces (not
    updated by the cluster or migration handlers)

# Health

GetHealth/GetReadiness aggregate component health registered via
RegisterComponent; HealthHandler/ReadyHandler/LivenessHandler expose them
over HTTP. No component of this module calls RegisterComponent or mounts
these handlers; the cluster-internal server's /cluster/health is served
by pkg/cluster from Runtime state.
*/
package metrics
