package cluster

import (
	"time"

	"github.com/sbdlabs/clustercore/pkg/election"
	"github.com/sbdlabs/clustercore/pkg/migration"
	"github.com/sbdlabs/clustercore/pkg/quorum"
	"github.com/sbdlabs/clustercore/pkg/replication"
	"github.com/sbdlabs/clustercore/pkg/router"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Config enumerates every setting named in spec §6, grouped by the
// component it configures. DefaultConfig returns a Config with every
// default set; an operator starts from it and overrides only the fields
// they want to change.
type Config struct {
	// Identity
	Enabled           bool
	NodeID            string
	NodeRole          types.NodeRole
	AdvertiseAddress  string
	AdvertisePort     int
	DataDir           string
	ClusterAuthToken  string
	MTLSEnabled       bool

	// C2 Health & Quorum Monitor
	HeartbeatIntervalSeconds int
	FailureThreshold         int
	QuorumPercentage         float64
	PeerProbeEnabled         bool

	// C3 Leader Elector
	ElectionTimeoutMinMS int
	ElectionTimeoutMaxMS int
	Failover             types.FailoverConfig

	// C4 Replication Engine
	ReplicationEnabled bool
	ReplicationMode    types.ReplicationMode

	// C5 Request Router + Load Balancer
	LoadBalancingAlgorithm       string
	StickySessions               bool
	CircuitBreakerEnabled        bool
	CircuitBreakerThreshold      int
	CircuitBreakerTimeoutSeconds int
	RequestTimeoutSeconds        int
	ReadPreference               router.ReadPreference

	// C6 Migration Pipeline
	MigrationStorageDir          string
	MigrationMaxCompressedBytes  int64
	MigrationMaxDecompressedBytes int64
	MigrationMaxDecompressionRatio int64
	MigrationAllowedIPs          []string
	MigrationRateLimitHours      int
}

// DefaultConfig returns every default value named across spec §4 and §6.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		NodeRole:         types.NodeRoleStandalone,
		AdvertiseAddress: "127.0.0.1",
		AdvertisePort:    7700,
		DataDir:          ".clustercore/data",

		HeartbeatIntervalSeconds: 5,
		FailureThreshold:         3,
		QuorumPercentage:         0.5,
		PeerProbeEnabled:         true,

		ElectionTimeoutMinMS: 150,
		ElectionTimeoutMaxMS: 300,
		Failover: types.FailoverConfig{
			AutoFailover:           true,
			FailoverTimeoutSeconds: 30,
			MinHealthyReplicas:     1,
			PromoteOnMasterFailure: true,
		},

		ReplicationEnabled: true,
		ReplicationMode:    types.ReplicationAsync,

		LoadBalancingAlgorithm:       router.AlgorithmRoundRobin,
		StickySessions:               false,
		CircuitBreakerEnabled:        true,
		CircuitBreakerThreshold:      5,
		CircuitBreakerTimeoutSeconds: 30,
		RequestTimeoutSeconds:        10,
		ReadPreference:               router.ReadPreferencePrimary,

		MigrationStorageDir:            ".clustercore/migrations",
		MigrationMaxCompressedBytes:    100 * 1024 * 1024,
		MigrationMaxDecompressedBytes:  10 * 1024 * 1024 * 1024,
		MigrationMaxDecompressionRatio: 100,
		MigrationRateLimitHours:        1,
	}
}

func (c Config) quorumConfig() quorum.Config {
	return quorum.Config{
		HeartbeatInterval: time.Duration(c.HeartbeatIntervalSeconds) * time.Second,
		FailureThreshold:  c.FailureThreshold,
		QuorumPercentage:  c.QuorumPercentage,
	}
}

func (c Config) electionConfig() election.Config {
	return election.Config{
		ElectionTimeoutMin: time.Duration(c.ElectionTimeoutMinMS) * time.Millisecond,
		ElectionTimeoutMax: time.Duration(c.ElectionTimeoutMaxMS) * time.Millisecond,
		Failover:           c.Failover,
	}
}

func (c Config) replicationConfig() replication.Config {
	cfg := replication.DefaultConfig(c.ClusterAuthToken)
	cfg.Mode = c.ReplicationMode
	return cfg
}

func (c Config) routerConfig() router.Config {
	return router.Config{
		Algorithm:               c.LoadBalancingAlgorithm,
		StickySessions:          c.StickySessions,
		CircuitBreakerEnabled:   c.CircuitBreakerEnabled,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   time.Duration(c.CircuitBreakerTimeoutSeconds) * time.Second,
		ReadPreference:          c.ReadPreference,
		ForwardTimeout:          time.Duration(c.RequestTimeoutSeconds) * time.Second,
	}
}

func (c Config) migrationConfig() migration.Config {
	return migration.Config{
		StorageDir:         c.MigrationStorageDir,
		MaxCompressedBytes: c.MigrationMaxCompressedBytes,
		DecompressLimits: migration.DecompressLimits{
			MaxBytes: c.MigrationMaxDecompressedBytes,
			MaxRatio: c.MigrationMaxDecompressionRatio,
		},
		RateLimitHours:     c.MigrationRateLimitHours,
		DefaultCompression: types.CompressionGzip,
	}
}
