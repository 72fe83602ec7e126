package types

import "time"

// NodeRole is the replication role of a cluster node.
type NodeRole string

const (
	NodeRoleStandalone NodeRole = "standalone"
	NodeRoleMaster     NodeRole = "master"
	NodeRoleReplica    NodeRole = "replica"
)

// NodeStatus is the lifecycle status of a cluster node.
type NodeStatus string

const (
	NodeStatusJoining   NodeStatus = "joining"
	NodeStatusHealthy   NodeStatus = "healthy"
	NodeStatusDegraded  NodeStatus = "degraded"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
	NodeStatusOffline   NodeStatus = "offline"
	NodeStatusLeaving   NodeStatus = "leaving"
)

// Capabilities describes what a node is willing and able to do.
type Capabilities struct {
	MaxConnections int  `json:"max_connections"`
	StorageBytes   int64 `json:"storage_bytes"`
	Cores          int  `json:"cores"`
	MemoryBytes    int64 `json:"memory_bytes"`
	SupportsWrites bool `json:"supports_writes"`
	SupportsReads  bool `json:"supports_reads"`
	Priority       int  `json:"priority"` // 0-100
}

// HealthMetrics tracks the observed health of a node.
type HealthMetrics struct {
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPercent     float64   `json:"memory_percent"`
	DiskPercent       float64   `json:"disk_percent"`
	ActiveConnections int       `json:"active_connections"`
	RequestsPerSecond float64   `json:"requests_per_second"`
}

// ReplicationMetrics tracks a node's standing in the replication topology.
type ReplicationMetrics struct {
	LagSeconds      float64   `json:"lag_seconds"`
	EventsPending   int64     `json:"events_pending"`
	EventsReplicated int64    `json:"events_replicated"`
	EventsFailed    int64     `json:"events_failed"`
	LastSync        time.Time `json:"last_sync"`
	ThroughputEPS   float64   `json:"throughput_eps"`
}

// Node is a single cluster participant.
type Node struct {
	ID              string             `json:"id"`
	Hostname        string             `json:"hostname"`
	Port            int                `json:"port"`
	Role            NodeRole           `json:"role"`
	Status          NodeStatus         `json:"status"`
	Capabilities    Capabilities       `json:"capabilities"`
	Health          HealthMetrics      `json:"health"`
	Replication     ReplicationMetrics `json:"replication"`
	OwnerUserID     string             `json:"owner_user_id"`
	ClusterTokenHash string            `json:"cluster_token_hash"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ReplicationOperation is the kind of mutation a ReplicationEvent carries.
type ReplicationOperation string

const (
	OpInsert  ReplicationOperation = "insert"
	OpUpdate  ReplicationOperation = "update"
	OpDelete  ReplicationOperation = "delete"
	OpReplace ReplicationOperation = "replace"
)

// ReplicationEventStatus is the dispatch lifecycle of a ReplicationEvent.
type ReplicationEventStatus string

const (
	EventStatusPending     ReplicationEventStatus = "pending"
	EventStatusReplicating ReplicationEventStatus = "replicating"
	EventStatusReplicated  ReplicationEventStatus = "replicated"
	EventStatusFailed      ReplicationEventStatus = "failed"
	EventStatusRetrying    ReplicationEventStatus = "retrying"
)

// ReplicationEvent is a single captured Store mutation destined for replicas.
type ReplicationEvent struct {
	SequenceNumber int64                  `json:"sequence_number"`
	EventID        string                 `json:"event_id"`
	Operation      ReplicationOperation   `json:"operation"`
	Collection     string                 `json:"collection"`
	DocumentID     string                 `json:"document_id"`
	Payload        map[string]any         `json:"payload,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	SourceNodeID   string                 `json:"source_node_id"`
	TargetNodeIDs  []string               `json:"target_node_ids"`
	Status         ReplicationEventStatus `json:"status"`
	RetryCount     int                    `json:"retry_count"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	ReplicatedAt   *time.Time             `json:"replicated_at,omitempty"`
}

// ConflictVersion is one of several concurrent versions of a document.
type ConflictVersion struct {
	SourceNodeID string         `json:"source_node_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
}

// ReplicationConflict records concurrent, unresolved writes to the same document.
type ReplicationConflict struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	DocumentID string            `json:"document_id"`
	Versions   []ConflictVersion `json:"versions"`
	Resolved   bool              `json:"resolved"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ReplicationMode governs how strongly capture waits on replicas.
type ReplicationMode string

const (
	ReplicationAsync     ReplicationMode = "async"
	ReplicationSync      ReplicationMode = "sync"
	ReplicationSemiSync  ReplicationMode = "semi-sync"
)

// TopologyType describes the shape of the cluster's replication graph.
type TopologyType string

const (
	TopologyStandalone    TopologyType = "standalone"
	TopologyMasterSlave   TopologyType = "master-slave"
	TopologyMasterMaster  TopologyType = "master-master"
	TopologyMultiMaster   TopologyType = "multi-master"
)

// FailoverConfig controls automatic master failover.
type FailoverConfig struct {
	AutoFailover          bool `json:"auto_failover"`
	FailoverTimeoutSeconds int  `json:"failover_timeout_seconds"`
	MinHealthyReplicas    int  `json:"min_healthy_replicas"`
	PromoteOnMasterFailure bool `json:"promote_on_master_failure"`
}

// LoadBalancingConfig picks the default routing algorithm and its knobs.
type LoadBalancingConfig struct {
	Algorithm             string `json:"algorithm"`
	StickySessions        bool   `json:"sticky_sessions"`
	CircuitBreakerEnabled bool   `json:"circuit_breaker_enabled"`
}

// ClusterTopology is the cluster's overall replication/routing configuration.
type ClusterTopology struct {
	Type               TopologyType        `json:"type"`
	ReplicationFactor  int                 `json:"replication_factor"`
	ReplicationMode    ReplicationMode     `json:"replication_mode"`
	LoadBalancing      LoadBalancingConfig `json:"load_balancing"`
	Failover           FailoverConfig      `json:"failover"`
}

// AlertSeverity ranks a ClusterAlert's urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// ClusterAlert is a deduplicated, lifecycle-tracked condition on the cluster.
type ClusterAlert struct {
	ID         string        `json:"id"` // deterministic: <type>:<node_id|"cluster">
	Type       string        `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	Title      string        `json:"title"`
	Message    string        `json:"message"`
	NodeID     string        `json:"node_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// Compression is the on-disk encoding of a migration package.
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
)

// CollectionManifest describes one collection within a migration package.
type CollectionManifest struct {
	Name           string   `json:"name"`
	DocumentCount  int      `json:"document_count"`
	SizeBytes      int64    `json:"size_bytes"`
	Checksum       string   `json:"checksum"`
	Indexes        []string `json:"indexes,omitempty"`
}

// PackageMetadata is the header of a MigrationPackage.
type PackageMetadata struct {
	Version          string               `json:"version"`
	SystemVersion    string               `json:"system_version"`
	ExportTimestamp  time.Time            `json:"export_timestamp"`
	ExportedBy       string               `json:"exported_by"`
	TenantID         string               `json:"tenant_id,omitempty"`
	Collections      []CollectionManifest `json:"collections"`
	TotalDocuments   int                  `json:"total_documents"`
	TotalSizeBytes   int64                `json:"total_size_bytes"`
	Checksum         string               `json:"checksum"`
	Compression      Compression          `json:"compression"`
	Description      string               `json:"description,omitempty"`
}

// CollectionExportData is one collection's payload within a MigrationPackage.
type CollectionExportData struct {
	CollectionName string           `json:"collection_name"`
	Documents      []map[string]any `json:"documents"`
	Indexes        []string         `json:"indexes,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}

// MigrationPackage is the full logical contents of an export/import bundle.
type MigrationPackage struct {
	Metadata    PackageMetadata         `json:"metadata"`
	Collections []CollectionExportData  `json:"collections"`
}

// MigrationType distinguishes export from import records.
type MigrationType string

const (
	MigrationTypeExport MigrationType = "export"
	MigrationTypeImport MigrationType = "import"
)

// MigrationStatus is the lifecycle of a MigrationRecord.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// MigrationRecord is the document-of-record for one export or import.
type MigrationRecord struct {
	MigrationID       string          `json:"migration_id"`
	Type              MigrationType   `json:"type"`
	Status            MigrationStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedBy         string          `json:"created_by"`
	TenantID          string          `json:"tenant_id,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	Progress          float64         `json:"progress"`
	PackageFilePath   string          `json:"package_file_path,omitempty"`
	PackageSizeBytes  int64           `json:"package_size_bytes"`
	PackageChecksum   string          `json:"package_checksum,omitempty"`
	RollbackAvailable bool            `json:"rollback_available"`
	RollbackDataPath  string          `json:"rollback_data_path,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ErrorDetails      map[string]any  `json:"error_details,omitempty"`
}

// RemoteInstance is a known peer system registered for direct transfers.
type RemoteInstance struct {
	InstanceID        string    `json:"instance_id"`
	OwnerID           string    `json:"owner_id"`
	Name              string    `json:"name"`
	BaseURL           string    `json:"base_url"`
	EncryptedAPIKey   []byte    `json:"encrypted_api_key"`
	CachedSizeBytes   int64     `json:"cached_size_bytes"`
	CachedCollections int       `json:"cached_collections"`
	LastSynced        time.Time `json:"last_synced"`
}

// TransferStatus is the lifecycle of a direct Transfer.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferCancelled  TransferStatus = "cancelled"
)

// Transfer is a direct node-to-node streaming migration between two instances.
type Transfer struct {
	TransferID         string         `json:"transfer_id"`
	SourceInstanceID   string         `json:"source_instance_id"`
	TargetInstanceID   string         `json:"target_instance_id"`
	Collections        []string       `json:"collections"`
	ConflictResolution string         `json:"conflict_resolution"`
	Status             TransferStatus `json:"status"`
	CurrentCollection  string         `json:"current_collection,omitempty"`
	DocumentsTransferred int64        `json:"documents_transferred"`
	DocumentsTotal     int64          `json:"documents_total"`
	PercentComplete    float64        `json:"percent_complete"`
	ETASeconds         float64        `json:"eta_seconds"`
	ThrottleMbps       float64        `json:"throttle_mbps,omitempty"`
	Error              string         `json:"error,omitempty"`
	Paused             bool           `json:"paused"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ScheduledMigration is a recurring direct-transfer job.
type ScheduledMigration struct {
	ID               string     `json:"id"`
	CronExpression   string     `json:"cron_expression"`
	SourceInstanceID string     `json:"source_instance_id"`
	TargetInstanceID string     `json:"target_instance_id"`
	Collections      []string   `json:"collections"`
	Enabled          bool       `json:"enabled"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	NextRun          *time.Time `json:"next_run,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AuditResult is the outcome recorded for a migration audit event.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditFailure AuditResult = "failure"
	AuditDenied  AuditResult = "denied"
	AuditBlocked AuditResult = "blocked"
	AuditStarted AuditResult = "started"
)

// MigrationAuditRecord is one structured entry in the migration audit trail.
type MigrationAuditRecord struct {
	ID                 string         `json:"id"`
	Timestamp          time.Time      `json:"timestamp"`
	EventType          string         `json:"event_type"`
	UserID             string         `json:"user_id"`
	TenantID           string         `json:"tenant_id,omitempty"`
	MigrationID        string         `json:"migration_id,omitempty"`
	IPAddress          string         `json:"ip_address,omitempty"`
	Action             string         `json:"action"`
	Result             AuditResult    `json:"result"`
	CollectionsAccessed []string      `json:"collections_accessed,omitempty"`
	DocumentCount      int            `json:"document_count"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
}

// ClusterEvent is an append-only audit record of registry/role changes.
type ClusterEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	NodeID    string         `json:"node_id,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// ClusterHealth is the aggregated snapshot returned by GET /cluster/health.
type ClusterHealth struct {
	Status        string  `json:"status"` // healthy, degraded, no_quorum
	TotalNodes    int     `json:"total_nodes"`
	HealthyNodes  int     `json:"healthy_nodes"`
	QuorumHolds   bool    `json:"quorum_holds"`
	AvgLagSeconds float64 `json:"avg_lag_seconds"`
	MaxLagSeconds float64 `json:"max_lag_seconds"`
	LeaderID      string  `json:"leader_id,omitempty"`
}

// OwnerValidationResult is the response to POST /cluster/validate-owner.
type OwnerValidationResult struct {
	OwnerUserID string          `json:"owner_user_id"`
	Consensus   bool            `json:"consensus"`
	PerNode     map[string]bool `json:"per_node"`
}
