/*
Package cluster wires the six components (C1-C6) into a single
Runtime per spec §9's "re-architecture of source patterns" note:
instead of module-level singletons (cluster_manager, replication_service,
load_balancer, migration_*), every component is a field constructed once
in NewRuntime and passed around by explicit handle. Runtime also exposes
the two HTTP surfaces named in spec §6 (cluster-internal and migration)
as plain net/http handlers, following cuemby-warren/pkg/api's
ServeMux-plus-JSON-encoding convention (health.go) rather than the
teacher's gRPC surface, which spec §6 does not call for.

Runtime.Start launches every background loop (heartbeat writer, health
sweeper, leader elector, replication dispatcher, migration schedule
runner) as a supervised task set; Runtime.Stop cancels all of them and
closes the Store.
*/
package cluster
