package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sbdlabs/clustercore/pkg/health"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Config controls the heartbeat writer and health sweeper's timing, and
// the quorum calculation's threshold.
type Config struct {
	HeartbeatInterval time.Duration
	FailureThreshold  int
	QuorumPercentage  float64
}

// DefaultConfig matches spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		FailureThreshold:  3,
		QuorumPercentage:  0.5,
	}
}

// Status is the aggregated snapshot of cluster health and quorum state.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusNoQuorum Status = "no_quorum"
)

// Monitor runs the heartbeat writer and health sweeper for one node and
// exposes quorum/split-brain queries used by pkg/election and the HTTP
// surface's /cluster/health handler.
type Monitor struct {
	nodeID   string
	store    storage.Store
	registry *registry.Registry
	alerts   *AlertManager
	rules    *AlertRules
	cfg      Config

	// prober, when set, corroborates a stale heartbeat with a live TCP
	// probe of the peer's advertised host:port before the sweep
	// declares it unhealthy. Nil by default: a single-process test
	// topology has nothing listening on a peer's advertised port, so
	// probing must be opted into by a real multi-node deployment.
	prober func(ctx context.Context, n *types.Node) health.Result

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SetProber installs the live reachability probe the sweep loop
// consults before marking a stale node unhealthy. Grounded on
// pkg/health's Checker interface: pkg/cluster's NewRuntime wires this to
// a TCPChecker per node (probeNode), dialing Hostname:Port.
func (m *Monitor) SetProber(prober func(ctx context.Context, n *types.Node) health.Result) {
	m.prober = prober
}

// NewMonitor creates a Monitor for nodeID. rules may be nil to use
// DefaultAlertRules.
func NewMonitor(nodeID string, store storage.Store, reg *registry.Registry, alerts *AlertManager, rules *AlertRules, cfg Config) *Monitor {
	if rules == nil {
		rules = DefaultAlertRules()
	}
	return &Monitor{
		nodeID:   nodeID,
		store:    store,
		registry: reg,
		alerts:   alerts,
		rules:    rules,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the heartbeat writer and health sweeper loops.
func (m *Monitor) Start() {
	m.wg.Add(2)
	go m.heartbeatLoop()
	go m.sweepLoop()
}

// Stop signals both loops to exit and waits for them.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) heartbeatLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.writeHeartbeat()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) writeHeartbeat() {
	node, err := m.store.GetNode(m.nodeID)
	if err != nil || node == nil {
		return
	}
	node.Health.LastHeartbeat = time.Now()
	node.Health.UptimeSeconds += int64(m.cfg.HeartbeatInterval.Seconds())
	node.UpdatedAt = time.Now()
	if err := m.store.UpdateNode(node); err != nil {
		log.WithNodeID(m.nodeID).Error().Err(err).Msg("failed to write heartbeat")
	}
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(2 * m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) sweep() {
	nodes, err := m.store.ListNodes()
	if err != nil {
		log.WithComponent("quorum").Error().Err(err).Msg("sweep: list nodes failed")
		return
	}

	staleAfter := m.cfg.HeartbeatInterval * time.Duration(m.cfg.FailureThreshold)
	now := time.Now()

	for _, n := range nodes {
		if n.Status == types.NodeStatusOffline {
			continue
		}
		if now.Sub(n.Health.LastHeartbeat) > staleAfter && m.confirmUnreachable(n) {
			if n.Status != types.NodeStatusUnhealthy {
				if err := m.registry.UpdateStatus(n.ID, types.NodeStatusUnhealthy); err != nil {
					log.WithNodeID(n.ID).Error().Err(err).Msg("failed to mark node unhealthy")
					continue
				}
				n.Status = types.NodeStatusUnhealthy
			}
			_ = m.alerts.Raise(AlertNodeDown, n.ID, "node down",
				fmt.Sprintf("node %s has not sent a heartbeat since %s", n.ID, n.Health.LastHeartbeat.Format(time.RFC3339)), "")
		} else {
			_ = m.alerts.Resolve(AlertNodeDown, n.ID)
		}

		m.checkResourceThresholds(n)
		m.checkReplicationLag(n)
	}

	m.checkQuorum(nodes)
	m.checkSplitBrain(nodes)
}

// confirmUnreachable reports whether a stale-heartbeat node should be
// treated as down. With no prober installed, a stale heartbeat alone is
// sufficient (the original behavior). With a prober installed, a node
// that still answers a live probe is left at its current status for
// this sweep — its heartbeat writer may simply be lagging.
func (m *Monitor) confirmUnreachable(n *types.Node) bool {
	if m.prober == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return !m.prober(ctx, n).Healthy
}

func (m *Monitor) checkResourceThresholds(n *types.Node) {
	rule := m.rules.Get(AlertResourceHigh)
	if rule == nil || !rule.Enabled {
		return
	}
	if n.Health.CPUPercent > rule.Threshold || n.Health.MemoryPercent > rule.Threshold {
		_ = m.alerts.Raise(AlertResourceHigh, n.ID, "resource usage high",
			fmt.Sprintf("node %s cpu=%.1f%% mem=%.1f%%", n.ID, n.Health.CPUPercent, n.Health.MemoryPercent), "")
	} else {
		_ = m.alerts.Resolve(AlertResourceHigh, n.ID)
	}
}

func (m *Monitor) checkReplicationLag(n *types.Node) {
	rule := m.rules.Get(AlertHighReplicationLag)
	if rule == nil || !rule.Enabled {
		return
	}
	if n.Replication.LagSeconds > rule.Threshold {
		_ = m.alerts.Raise(AlertHighReplicationLag, n.ID, "replication lag high",
			fmt.Sprintf("node %s lag=%.1fs", n.ID, n.Replication.LagSeconds), "")
	} else {
		_ = m.alerts.Resolve(AlertHighReplicationLag, n.ID)
	}
}

// QuorumHolds reports whether healthy_count >= floor(total*quorum_percentage)+1.
func (m *Monitor) QuorumHolds(nodes []*types.Node) bool {
	total := len(nodes)
	if total == 0 {
		return false
	}
	healthy := countHealthy(nodes)
	required := int(float64(total)*m.cfg.QuorumPercentage) + 1
	return healthy >= required
}

// Calculate returns the aggregated cluster status for the given node set.
func Calculate(nodes []*types.Node, quorumPercentage float64) Status {
	total := len(nodes)
	if total == 0 {
		return StatusNoQuorum
	}
	healthy := countHealthy(nodes)
	required := int(float64(total)*quorumPercentage) + 1

	switch {
	case healthy == total:
		return StatusHealthy
	case healthy >= required:
		return StatusDegraded
	default:
		return StatusNoQuorum
	}
}

func countHealthy(nodes []*types.Node) int {
	healthy := 0
	for _, n := range nodes {
		if n.Status == types.NodeStatusHealthy {
			healthy++
		}
	}
	return healthy
}

func (m *Monitor) checkQuorum(nodes []*types.Node) {
	if m.QuorumHolds(nodes) {
		_ = m.alerts.Resolve(AlertNoQuorum, ClusterScopeNodeID)
	} else {
		_ = m.alerts.Raise(AlertNoQuorum, ClusterScopeNodeID, "quorum lost", "cluster has lost quorum", "")
		m.checkSelfIsolation(nodes)
	}
}

// checkSelfIsolation demotes this node if it believes itself master but
// the cluster (from its own view of cluster_nodes) has lost quorum.
func (m *Monitor) checkSelfIsolation(nodes []*types.Node) {
	for _, n := range nodes {
		if n.ID == m.nodeID && n.Role == types.NodeRoleMaster {
			log.WithNodeID(m.nodeID).Warn().Msg("self-demoting: master below quorum among reachable peers")
			if _, err := m.registry.Demote(m.nodeID); err != nil {
				log.WithNodeID(m.nodeID).Error().Err(err).Msg("self-demotion failed")
			}
			return
		}
	}
}

func (m *Monitor) checkSplitBrain(nodes []*types.Node) {
	isSplit, masters := Detect(nodes)
	if !isSplit {
		_ = m.alerts.Resolve(AlertSplitBrain, ClusterScopeNodeID)
		return
	}

	_ = m.alerts.Raise(AlertSplitBrain, ClusterScopeNodeID, "split-brain detected",
		fmt.Sprintf("%d nodes claim role=master", len(masters)), "")

	legitimate := Resolve(masters)
	for _, n := range masters {
		if n.ID == legitimate.ID {
			continue
		}
		if _, err := m.registry.Demote(n.ID); err != nil {
			log.WithNodeID(n.ID).Error().Err(err).Msg("split-brain demotion failed")
		}
	}
}
