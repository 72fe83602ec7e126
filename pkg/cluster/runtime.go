package cluster

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/cache"
	"github.com/sbdlabs/clustercore/pkg/election"
	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/health"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/migration"
	"github.com/sbdlabs/clustercore/pkg/quorum"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/replication"
	"github.com/sbdlabs/clustercore/pkg/router"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Runtime owns every component of the cluster coordination subsystem for
// one node process: the shared Store, the in-process event Broker and
// Cache, and C1-C6. It is constructed once at process startup and
// threaded explicitly into the two HTTP surfaces, replacing the
// teacher's module-level singletons per spec §9.
type Runtime struct {
	cfg    Config
	nodeID string

	store  storage.Store
	broker *events.Broker
	cache  cache.Cache

	Registry   *registry.Registry
	Monitor    *quorum.Monitor
	Alerts     *quorum.AlertManager
	Elector    *election.Elector
	Engine     *replication.Engine
	Router     *router.Router
	Conflicts  *replication.ConflictResolver

	Lock      *migration.TenantLock
	Limiter   *migration.RateLimiter
	Audit     *migration.AuditLogger
	Exporter  *migration.Exporter
	Importer  *migration.Importer
	Rollback  *migration.Rollbacker
	Transfers *migration.TransferRunner
	Schedules *migration.ScheduleRunner

	// CA backs the optional mTLS mode on the cluster-internal HTTP
	// surface (spec §6); left uninitialized when cfg.MTLSEnabled is
	// false, since most topologies rely on X-Cluster-Token alone.
	CA *security.CertAuthority

	metricsCollector *metrics.Collector
}

// NewRuntime constructs every component wired to store and the given
// configuration, but does not start any background loop — call Start for
// that. A fresh node id is minted if cfg.NodeID is empty; this is the
// same identity used for replication sequencing and cluster events.
func NewRuntime(cfg Config, store storage.Store) (*Runtime, error) {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	broker := events.NewBroker()

	var backingCache cache.Cache = cache.NewMemoryCache()
	rt := &Runtime{cfg: cfg, nodeID: nodeID, store: store, broker: broker, cache: backingCache}

	rt.Registry = registry.New(store, broker)

	rules := quorum.DefaultAlertRules()
	rt.Alerts = quorum.NewAlertManager(store, broker, rules)
	rt.Monitor = quorum.NewMonitor(nodeID, store, rt.Registry, rt.Alerts, rules, cfg.quorumConfig())
	if cfg.PeerProbeEnabled {
		rt.Monitor.SetProber(probeNode)
	}

	rt.Elector = election.New(nodeID, store, rt.Registry, broker, cfg.electionConfig())

	rt.Conflicts = replication.NewConflictResolver(store, replication.ConflictLastWriteWins)
	rt.Engine = replication.New(nodeID, store, rt.Registry, broker, rt.Conflicts, cfg.replicationConfig())

	rt.Router = router.New(nodeID, rt.Registry, cfg.routerConfig(), cfg.ClusterAuthToken)

	rt.Lock = migration.NewTenantLock(backingCache)
	rt.Limiter = migration.NewRateLimiter(backingCache, cfg.MigrationRateLimitHours)
	rt.Audit = migration.NewAuditLogger(store)
	migCfg := cfg.migrationConfig()
	rt.Exporter = migration.NewExporter(store, broker, rt.Lock, rt.Limiter, rt.Audit, migCfg)
	rt.Importer = migration.NewImporter(store, broker, rt.Lock, rt.Limiter, rt.Audit, migCfg)
	rt.Rollback = migration.NewRollbacker(store, broker, rt.Audit, migCfg)
	rt.Transfers = migration.NewTransferRunner(store, broker)
	rt.Schedules = migration.NewScheduleRunner(store, rt.Transfers)

	rt.metricsCollector = metrics.NewCollector(rt)

	if cfg.MTLSEnabled {
		ca := security.NewCertAuthority(store)
		if err := ca.LoadFromStore(); err != nil {
			if err := ca.Initialize(); err != nil {
				return nil, fmt.Errorf("initializing cluster CA: %w", err)
			}
			if err := ca.SaveToStore(); err != nil {
				return nil, fmt.Errorf("persisting cluster CA: %w", err)
			}
		}
		rt.CA = ca
	}

	return rt, nil
}

// ClusterTLSConfig builds the server-side tls.Config for the
// cluster-internal HTTP surface when mTLS is enabled: this node's
// certificate signed by the cluster CA, plus client-certificate
// verification against that same CA's root. Returns nil, nil if mTLS is
// not enabled.
func (rt *Runtime) ClusterTLSConfig() (*tls.Config, error) {
	if rt.CA == nil {
		return nil, nil
	}
	cert, err := rt.CA.IssueNodeCertificate(rt.nodeID, string(rt.cfg.NodeRole), []string{rt.cfg.AdvertiseAddress}, nil)
	if err != nil {
		return nil, fmt.Errorf("issuing node certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pemEncodeCert(rt.CA.GetRootCACert()))
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
	}, nil
}

func pemEncodeCert(der []byte) []byte {
	if der == nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// probeNode dials a peer's advertised host:port, corroborating a stale
// heartbeat with a live reachability check per pkg/health's doc comment.
func probeNode(ctx context.Context, n *types.Node) health.Result {
	checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", n.Hostname, n.Port))
	return checker.Check(ctx)
}

// NodeID returns this process's cluster identity.
func (rt *Runtime) NodeID() string {
	return rt.nodeID
}

// Start registers this node (if cfg.Enabled) and launches every
// background task: the broker, the health monitor's two loops, the
// leader elector, the replication dispatcher/capture, the migration
// schedule runner, and the metrics collector. Per spec §5, each is a
// task on its own loop; Start itself does not block.
func (rt *Runtime) Start() error {
	rt.broker.Start()

	if rt.cfg.Enabled {
		capabilities := types.Capabilities{
			SupportsWrites: rt.cfg.NodeRole == types.NodeRoleMaster || rt.cfg.NodeRole == types.NodeRoleStandalone,
			SupportsReads:  true,
			Priority:       50,
		}
		id, err := rt.Registry.Register(rt.cfg.AdvertiseAddress, rt.cfg.AdvertisePort, rt.cfg.NodeRole, capabilities, "", rt.cfg.ClusterAuthToken)
		if err != nil {
			return fmt.Errorf("registering node: %w", err)
		}
		rt.nodeID = id
		if err := rt.Registry.UpdateStatus(id, types.NodeStatusHealthy); err != nil {
			log.WithComponent("cluster").Warn().Err(err).Msg("failed to mark self healthy at startup")
		}
	}

	rt.Monitor.Start()
	rt.Elector.Start()
	if rt.cfg.ReplicationEnabled {
		rt.Engine.Start()
	}
	rt.Schedules.Start()
	rt.metricsCollector.Start()

	log.WithComponent("cluster").Info().Str("node_id", rt.nodeID).Msg("runtime started")
	return nil
}

// Stop cancels every background task and closes the Store. It does not
// remove this node's registry row; an operator wanting a clean departure
// should call Registry.UpdateStatus(id, types.NodeStatusLeaving) first.
func (rt *Runtime) Stop() error {
	rt.metricsCollector.Stop()
	rt.Schedules.Stop()
	rt.Engine.Stop()
	rt.Elector.Stop()
	rt.Monitor.Stop()
	rt.broker.Stop()
	return rt.store.Close()
}

// ListNodes satisfies metrics.Source.
func (rt *Runtime) ListNodes() ([]*types.Node, error) {
	return rt.Registry.ListNodes("", "")
}

// ActiveAlerts satisfies metrics.Source.
func (rt *Runtime) ActiveAlerts() ([]*types.ClusterAlert, error) {
	return rt.Alerts.ActiveAlerts()
}

// IsLeader satisfies metrics.Source.
func (rt *Runtime) IsLeader() bool {
	leader, err := rt.Registry.CurrentLeader()
	return err == nil && leader != "" && leader == rt.nodeID
}

// Health builds the aggregated ClusterHealth snapshot for GET
// /cluster/health, per spec §3's ClusterTopology/ClusterHealth shape.
func (rt *Runtime) Health() (*types.ClusterHealth, error) {
	nodes, err := rt.Registry.ListNodes("", "")
	if err != nil {
		return nil, err
	}

	status := quorum.Calculate(nodes, rt.cfg.QuorumPercentage)
	healthy := 0
	for _, n := range nodes {
		if n.Status == types.NodeStatusHealthy {
			healthy++
		}
	}

	leader, _ := rt.Registry.CurrentLeader()

	var sum, max float64
	lags := rt.Engine.Lags()
	for _, lag := range lags {
		sum += lag
		if lag > max {
			max = lag
		}
	}
	avg := 0.0
	if len(lags) > 0 {
		avg = sum / float64(len(lags))
	}

	return &types.ClusterHealth{
		Status:        string(status),
		TotalNodes:    len(nodes),
		HealthyNodes:  healthy,
		QuorumHolds:   rt.Monitor.QuorumHolds(nodes),
		AvgLagSeconds: avg,
		MaxLagSeconds: max,
		LeaderID:      leader,
	}, nil
}
