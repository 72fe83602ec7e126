/*
Package types defines the data structures shared by every clustercore
component: node identity and health, replication events and conflicts,
cluster topology and alerts, and the migration package/record/transfer
family.

All types are JSON-tagged; the same struct is used for Store persistence
(pkg/storage) and wire transport (the inter-node HTTP surface and the
migration package format), so adding a field here changes both without a
translation layer.

# Integration points

  - pkg/storage persists these as JSON documents, one bucket per collection.
  - pkg/registry, pkg/quorum, pkg/election operate on Node.
  - pkg/replication operates on ReplicationEvent and ReplicationConflict.
  - pkg/router consults Node.Capabilities and Node.Status for selection.
  - pkg/migration produces and consumes MigrationPackage, MigrationRecord,
    RemoteInstance, Transfer, ScheduledMigration, and MigrationAuditRecord.
*/
package types
