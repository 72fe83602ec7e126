package storage

import (
	"time"

	"github.com/sbdlabs/clustercore/pkg/types"
)

// InternalCollections names the buckets owned by the cluster core itself.
// No code in this module reads it: the migration pipeline does not check
// collection names against it, and the change stream stays clear of these
// buckets only because Watch is fed by PutDocument and DeleteDocument
// alone.
var InternalCollections = map[string]bool{
	"cluster_nodes":          true,
	"replication_log":        true,
	"replication_conflicts":  true,
	"cluster_events":         true,
	"cluster_alerts":         true,
	"migrations":             true,
	"migration_transfers":    true,
	"migration_instances":    true,
	"scheduled_migrations":   true,
	"migration_audit":        true,
	"replication_apply_log":  true,
	"cluster_ca":             true,
}

// DocumentRecord pairs a document's id with its stored content, for
// callers that need to round-trip the id (ListDocuments alone does not).
type DocumentRecord struct {
	ID   string
	Data map[string]any
}

// Mutation describes a single change to a generic (non-internal) document
// collection, as observed by Watch subscribers.
type Mutation struct {
	Operation  types.ReplicationOperation
	Collection string
	DocumentID string
	Data       map[string]any
	Timestamp  time.Time
}

// WatchFunc observes a committed Mutation. It runs synchronously on the
// goroutine that performed the write and must not block for long.
type WatchFunc func(Mutation)

// Store is the persistence interface for every collection named in §5 of
// the cluster coordination design, plus a generic document store standing
// in for the application data collections that sit outside this module's
// scope but that the Replication Engine still needs something to capture
// changes from.
type Store interface {
	// Nodes (cluster_nodes)
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// Replication log (replication_log)
	AppendReplicationEvent(event *types.ReplicationEvent) error
	UpdateReplicationEvent(event *types.ReplicationEvent) error
	GetReplicationEvent(eventID string) (*types.ReplicationEvent, error)
	ListPendingReplicationEvents(limit int) ([]*types.ReplicationEvent, error)
	MaxSequenceNumber(sourceNodeID string) (int64, error)

	// Apply idempotence log (replication_apply_log)
	HasApplied(eventID string) (bool, error)
	MarkApplied(eventID string) error

	// Replication conflicts (replication_conflicts)
	CreateConflict(conflict *types.ReplicationConflict) error
	ListUnresolvedConflicts() ([]*types.ReplicationConflict, error)
	ResolveConflict(id string) error

	// Cluster events (cluster_events)
	AppendClusterEvent(event *types.ClusterEvent) error
	ListClusterEvents(limit int) ([]*types.ClusterEvent, error)

	// Cluster alerts (cluster_alerts)
	UpsertAlert(alert *types.ClusterAlert) error
	GetAlert(id string) (*types.ClusterAlert, error)
	ListActiveAlerts() ([]*types.ClusterAlert, error)

	// Migration records (migrations)
	CreateMigrationRecord(rec *types.MigrationRecord) error
	GetMigrationRecord(id string) (*types.MigrationRecord, error)
	UpdateMigrationRecord(rec *types.MigrationRecord) error
	ListMigrationRecords(createdBy string) ([]*types.MigrationRecord, error)
	DeleteMigrationRecord(id string) error

	// Direct transfers (migration_transfers)
	CreateTransfer(t *types.Transfer) error
	GetTransfer(id string) (*types.Transfer, error)
	UpdateTransfer(t *types.Transfer) error
	ListTransfers() ([]*types.Transfer, error)

	// Remote instances (migration_instances)
	CreateRemoteInstance(inst *types.RemoteInstance) error
	GetRemoteInstance(id string) (*types.RemoteInstance, error)
	UpdateRemoteInstance(inst *types.RemoteInstance) error
	ListRemoteInstances(ownerID string) ([]*types.RemoteInstance, error)
	DeleteRemoteInstance(id string) error

	// Scheduled migrations (scheduled_migrations)
	CreateScheduledMigration(s *types.ScheduledMigration) error
	GetScheduledMigration(id string) (*types.ScheduledMigration, error)
	UpdateScheduledMigration(s *types.ScheduledMigration) error
	ListScheduledMigrations() ([]*types.ScheduledMigration, error)
	DeleteScheduledMigration(id string) error

	// Migration audit trail (migration_audit)
	AppendAuditRecord(rec *types.MigrationAuditRecord) error
	ListAuditByMigration(migrationID string) ([]*types.MigrationAuditRecord, error)
	ListAuditByTenant(tenantID string) ([]*types.MigrationAuditRecord, error)

	// Generic document store standing in for application-owned collections.
	PutDocument(collection, id string, data map[string]any) error
	GetDocument(collection, id string) (map[string]any, bool, error)
	DeleteDocument(collection, id string) error
	ListDocuments(collection string) ([]map[string]any, error)

	// ListDocumentRecords is ListDocuments with each document's key
	// preserved, needed by the migration pipeline to round-trip document
	// ids through an export/import cycle.
	ListDocumentRecords(collection string) ([]DocumentRecord, error)

	// ListCollections enumerates the non-internal collections that
	// currently have at least one document, for the migration pipeline's
	// default "export everything" behavior and its collections endpoint.
	ListCollections() ([]string, error)

	// Watch registers fn to be invoked for every PutDocument/DeleteDocument
	// mutation on a non-internal collection. Returns a cancel function.
	Watch(fn WatchFunc) (cancel func())

	// Cluster CA (cluster_ca) persists the mTLS root certificate authority
	// used to issue node and client certificates for the cluster-internal
	// HTTP surface.
	GetCA() ([]byte, error)
	SaveCA(data []byte) error

	Close() error
}
