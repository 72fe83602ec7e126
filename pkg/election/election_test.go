package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

func newTestElector(t *testing.T, cfg Config) (*Elector, storage.Store, *registry.Registry) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	reg := registry.New(store, broker)
	e := New("self", store, reg, broker, cfg)
	return e, store, reg
}

func TestElectLeader_PicksHighestPriority(t *testing.T) {
	e, store, _ := newTestElector(t, DefaultConfig())

	low := &types.Node{ID: "low", Role: types.NodeRoleMaster, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 50}, CreatedAt: time.Now()}
	high := &types.Node{ID: "high", Role: types.NodeRoleMaster, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 100}, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(low))
	require.NoError(t, store.CreateNode(high))

	leader, err := e.ElectLeader()
	require.NoError(t, err)
	assert.Equal(t, "high", leader)
}

func TestElectLeader_TieBreaksOnCreatedAt(t *testing.T) {
	e, store, _ := newTestElector(t, DefaultConfig())

	now := time.Now()
	first := &types.Node{ID: "first", Role: types.NodeRoleMaster, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 100}, CreatedAt: now}
	second := &types.Node{ID: "second", Role: types.NodeRoleMaster, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 100}, CreatedAt: now.Add(time.Second)}
	require.NoError(t, store.CreateNode(second))
	require.NoError(t, store.CreateNode(first))

	leader, err := e.ElectLeader()
	require.NoError(t, err)
	assert.Equal(t, "first", leader)
}

func TestElectLeader_NoHealthyMasterNoFailoverYet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Failover.FailoverTimeoutSeconds = 3600
	e, store, _ := newTestElector(t, cfg)

	replica := &types.Node{ID: "r1", Role: types.NodeRoleReplica, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 50}, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(replica))

	leader, err := e.ElectLeader()
	require.NoError(t, err)
	assert.Empty(t, leader)
}

func TestElectLeader_FailoverPromotesReplica(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Failover.FailoverTimeoutSeconds = 0
	cfg.Failover.MinHealthyReplicas = 1
	e, store, reg := newTestElector(t, cfg)

	replica := &types.Node{ID: "r1", Role: types.NodeRoleReplica, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 50}, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(replica))

	leader, err := e.ElectLeader()
	require.NoError(t, err)
	assert.Equal(t, "r1", leader)

	node, err := reg.GetNode("r1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeRoleMaster, node.Role)
}

func TestElectLeader_FailoverDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Failover.AutoFailover = false
	cfg.Failover.FailoverTimeoutSeconds = 0
	e, store, _ := newTestElector(t, cfg)

	replica := &types.Node{ID: "r1", Role: types.NodeRoleReplica, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 50}, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(replica))

	leader, err := e.ElectLeader()
	require.NoError(t, err)
	assert.Empty(t, leader)
}

func TestElectLeader_FirstElectionWithHealthyMasterDoesNotRecurse(t *testing.T) {
	e, store, reg := newTestElector(t, DefaultConfig())

	master := &types.Node{ID: "m1", Role: types.NodeRoleMaster, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 100}, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(master))

	require.Empty(t, reg.CachedLeader())

	leader, err := e.ElectLeader()
	require.NoError(t, err)
	assert.Equal(t, "m1", leader)
	assert.Equal(t, "m1", reg.CachedLeader())
}

func TestCurrentLeader_DelegatesToRegistry(t *testing.T) {
	e, store, reg := newTestElector(t, DefaultConfig())

	node := &types.Node{ID: "m1", Role: types.NodeRoleMaster, Status: types.NodeStatusHealthy, Capabilities: types.Capabilities{Priority: 100}, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(node))

	_, err := e.ElectLeader()
	require.NoError(t, err)

	leader, err := reg.CurrentLeader()
	require.NoError(t, err)
	assert.Equal(t, "m1", leader)
}
