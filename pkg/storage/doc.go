/*
Package storage provides BoltDB-backed persistence for every collection
named in the cluster coordination design: cluster_nodes, replication_log,
replication_conflicts, cluster_events, cluster_alerts, migrations,
migration_transfers, migration_instances, scheduled_migrations, and
migration_audit — one bucket per collection, data serialized as JSON.

It also hosts a generic, bucket-per-collection document store
(PutDocument/GetDocument/DeleteDocument/ListDocuments) standing in for the
application data collections that sit outside this module but that the
Replication Engine (pkg/replication) still needs a change stream from.
Watch registers an observer invoked for every mutation on those generic
collections; internal collections never trigger it (see
InternalCollections).

# Architecture

	┌──────────────── BOLTDB STORAGE ────────────────┐
	│  BoltStore                                      │
	│  - File: <dataDir>/clustercore.db                │
	│  - One bucket per internal collection            │
	│  - doc_<name> buckets created on demand          │
	│  - Read: db.View()   Write: db.Update()          │
	└──────────────────────────────────────────────────┘

All mutating methods are upserts keyed by the record's natural ID. Listing
methods perform a full bucket scan and filter/sort in Go, matching the
linear-scan style already used for name lookups.
*/
package storage
