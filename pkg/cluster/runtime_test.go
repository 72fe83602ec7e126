package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.ReplicationEnabled = false
	cfg.DataDir = t.TempDir()
	cfg.MigrationStorageDir = t.TempDir()
	cfg.ClusterAuthToken = "test-token"

	rt, err := NewRuntime(cfg, store)
	require.NoError(t, err)
	return rt
}

func TestNewRuntime_WiresEveryComponent(t *testing.T) {
	rt := newTestRuntime(t)

	assert.NotNil(t, rt.Registry)
	assert.NotNil(t, rt.Monitor)
	assert.NotNil(t, rt.Alerts)
	assert.NotNil(t, rt.Elector)
	assert.NotNil(t, rt.Engine)
	assert.NotNil(t, rt.Router)
	assert.NotNil(t, rt.Lock)
	assert.NotNil(t, rt.Limiter)
	assert.NotNil(t, rt.Audit)
	assert.NotNil(t, rt.Exporter)
	assert.NotNil(t, rt.Importer)
	assert.NotNil(t, rt.Rollback)
	assert.NotNil(t, rt.Transfers)
	assert.NotNil(t, rt.Schedules)
	assert.NotEmpty(t, rt.NodeID())
}

func TestRuntime_Health_EmptyCluster(t *testing.T) {
	rt := newTestRuntime(t)

	health, err := rt.Health()
	require.NoError(t, err)
	assert.Equal(t, 0, health.TotalNodes)
	assert.Equal(t, "no_quorum", health.Status)
	assert.False(t, health.QuorumHolds)
}

func TestRuntime_Health_WithHealthyNode(t *testing.T) {
	rt := newTestRuntime(t)

	id, err := rt.Registry.Register("a.local", 9100, types.NodeRoleMaster, types.Capabilities{Priority: 50}, "owner", "tok")
	require.NoError(t, err)
	require.NoError(t, rt.Registry.UpdateStatus(id, types.NodeStatusHealthy))

	health, err := rt.Health()
	require.NoError(t, err)
	assert.Equal(t, 1, health.TotalNodes)
	assert.Equal(t, 1, health.HealthyNodes)
	assert.Equal(t, "healthy", health.Status)
}

func TestRuntime_ClusterTLSConfig_DisabledByDefault(t *testing.T) {
	rt := newTestRuntime(t)

	tlsCfg, err := rt.ClusterTLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestRuntime_ClusterTLSConfig_IssuesNodeCert(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.ReplicationEnabled = false
	cfg.DataDir = t.TempDir()
	cfg.MigrationStorageDir = t.TempDir()
	cfg.ClusterAuthToken = "test-token"
	cfg.MTLSEnabled = true

	rt, err := NewRuntime(cfg, store)
	require.NoError(t, err)
	require.NotNil(t, rt.CA)

	tlsCfg, err := rt.ClusterTLSConfig()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.Len(t, tlsCfg.Certificates, 1)
}

func TestRuntime_MetricsSource(t *testing.T) {
	rt := newTestRuntime(t)

	nodes, err := rt.ListNodes()
	require.NoError(t, err)
	assert.Empty(t, nodes)

	alerts, err := rt.ActiveAlerts()
	require.NoError(t, err)
	assert.Empty(t, alerts)

	assert.False(t, rt.IsLeader())
}
