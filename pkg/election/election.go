package election

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Config controls the election timer's jitter range and failover policy.
type Config struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	Failover           types.FailoverConfig
}

// DefaultConfig matches spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		Failover: types.FailoverConfig{
			AutoFailover:           true,
			FailoverTimeoutSeconds: 10,
			MinHealthyReplicas:     1,
			PromoteOnMasterFailure: true,
		},
	}
}

// Elector is the Leader Elector component (C3). It satisfies
// registry.LeaderElector.
type Elector struct {
	nodeID   string
	store    storage.Store
	registry *registry.Registry
	broker   *events.Broker
	cfg      Config

	mu             sync.Mutex
	masterLostAt   time.Time
	failoverFired  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Elector and registers it with reg as the CurrentLeader
// fallback.
func New(nodeID string, store storage.Store, reg *registry.Registry, broker *events.Broker, cfg Config) *Elector {
	e := &Elector{
		nodeID:   nodeID,
		store:    store,
		registry: reg,
		broker:   broker,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
	reg.SetElector(e)
	return e
}

// Start launches the election background loop.
func (e *Elector) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop signals the loop to exit and waits for it.
func (e *Elector) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Elector) loop() {
	defer e.wg.Done()

	const healthPollInterval = 100 * time.Millisecond
	healthTicker := time.NewTicker(healthPollInterval)
	defer healthTicker.Stop()

	timer := time.NewTimer(e.randomizedTimeout())
	defer timer.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-healthTicker.C:
			if !e.currentLeaderHealthy() {
				e.runElection()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(e.randomizedTimeout())
			}
		case <-timer.C:
			e.runElection()
			timer.Reset(e.randomizedTimeout())
		}
	}
}

func (e *Elector) randomizedTimeout() time.Duration {
	lo, hi := e.cfg.ElectionTimeoutMin, e.cfg.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	span := hi - lo
	return lo + time.Duration(rand.Int63n(int64(span)))
}

func (e *Elector) currentLeaderHealthy() bool {
	leaderID, err := e.registry.CurrentLeader()
	if err != nil || leaderID == "" {
		return false
	}
	node, err := e.store.GetNode(leaderID)
	if err != nil || node == nil {
		return false
	}
	return node.Status == types.NodeStatusHealthy
}

func (e *Elector) runElection() {
	if _, err := e.ElectLeader(); err != nil {
		log.WithNodeID(e.nodeID).Error().Err(err).Msg("election failed")
	}
}

// ElectLeader picks the highest-priority healthy master (ties broken by
// earliest created_at). If none exists and failover is enabled, promotes
// the highest-priority healthy replica once the master has been missing
// for failover_timeout seconds and enough healthy replicas remain.
func (e *Elector) ElectLeader() (string, error) {
	nodes, err := e.store.ListNodes()
	if err != nil {
		return "", err
	}

	if winner := pickHealthyMaster(nodes); winner != nil {
		e.clearMasterLost()
		return e.commitLeader(winner.ID, nodes)
	}

	return e.considerFailover(nodes)
}

func pickHealthyMaster(nodes []*types.Node) *types.Node {
	var best *types.Node
	for _, n := range nodes {
		if n.Role != types.NodeRoleMaster || n.Status != types.NodeStatusHealthy {
			continue
		}
		if best == nil || betterCandidate(n, best) {
			best = n
		}
	}
	return best
}

func betterCandidate(a, b *types.Node) bool {
	if a.Capabilities.Priority != b.Capabilities.Priority {
		return a.Capabilities.Priority > b.Capabilities.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (e *Elector) clearMasterLost() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.masterLostAt = time.Time{}
	e.failoverFired = false
}

// considerFailover handles the no-healthy-master case: tracks how long the
// master has been missing and, once Failover policy allows it, promotes
// the best healthy replica.
func (e *Elector) considerFailover(nodes []*types.Node) (string, error) {
	e.mu.Lock()
	if e.masterLostAt.IsZero() {
		e.masterLostAt = time.Now()
	}
	lostFor := time.Since(e.masterLostAt)
	alreadyFired := e.failoverFired
	e.mu.Unlock()

	if !e.cfg.Failover.AutoFailover || !e.cfg.Failover.PromoteOnMasterFailure || alreadyFired {
		return "", nil
	}
	if lostFor < time.Duration(e.cfg.Failover.FailoverTimeoutSeconds)*time.Second {
		return "", nil
	}

	healthyReplicas := healthyReplicasOf(nodes)
	if len(healthyReplicas) < e.cfg.Failover.MinHealthyReplicas {
		return "", nil
	}

	var best *types.Node
	for _, n := range healthyReplicas {
		if best == nil || betterCandidate(n, best) {
			best = n
		}
	}
	if best == nil {
		return "", nil
	}

	if _, err := e.registry.Promote(best.ID, true); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.failoverFired = true
	e.mu.Unlock()

	return e.commitLeader(best.ID, nodes)
}

func healthyReplicasOf(nodes []*types.Node) []*types.Node {
	var out []*types.Node
	for _, n := range nodes {
		if n.Role == types.NodeRoleReplica && n.Status == types.NodeStatusHealthy {
			out = append(out, n)
		}
	}
	return out
}

func (e *Elector) commitLeader(id string, nodes []*types.Node) (string, error) {
	// CachedLeader, not CurrentLeader: CurrentLeader falls back to
	// e.ElectLeader() whenever nothing is cached yet, which on the first
	// election recurses into commitLeader forever.
	previous := e.registry.CachedLeader()
	e.registry.SetCachedLeader(id)

	if previous == id {
		return id, nil
	}

	metrics.ElectionsTotal.Inc()
	if e.broker != nil {
		e.broker.Publish(&events.Event{
			Type:     events.EventLeaderElected,
			Message:  "leader elected",
			Metadata: map[string]string{"node_id": id},
		})
	}

	_ = e.store.AppendClusterEvent(&types.ClusterEvent{
		ID:        uuid.NewString(),
		Type:      "leader_elected",
		Timestamp: time.Now(),
		NodeID:    id,
		Message:   "leader elected",
	})

	log.WithNodeID(id).Info().Msg("elected as cluster leader")
	return id, nil
}

// CurrentLeader delegates to the Registry's cache.
func (e *Elector) CurrentLeader() (string, error) {
	return e.registry.CurrentLeader()
}
