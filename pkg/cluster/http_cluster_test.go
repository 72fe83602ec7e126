package cluster

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/types"
)

func TestClusterHandler_RequiresToken(t *testing.T) {
	rt := newTestRuntime(t)
	h := NewClusterHandler(rt)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/cluster/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClusterHandler_RejectsWrongToken(t *testing.T) {
	rt := newTestRuntime(t)
	h := NewClusterHandler(rt)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/cluster/health", nil)
	require.NoError(t, err)
	req.Header.Set(clusterTokenHeader, "not-the-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestClusterHandler_Health(t *testing.T) {
	rt := newTestRuntime(t)
	h := NewClusterHandler(rt)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/cluster/health", nil)
	require.NoError(t, err)
	req.Header.Set(clusterTokenHeader, rt.cfg.ClusterAuthToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health types.ClusterHealth
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "no_quorum", health.Status)
}

func TestClusterHandler_RegisterAndListNodes(t *testing.T) {
	rt := newTestRuntime(t)
	h := NewClusterHandler(rt)
	srv := httptest.NewServer(h)
	defer srv.Close()

	body, err := json.Marshal(registerRequest{
		Hostname:     "a.local",
		Port:         9100,
		Role:         types.NodeRoleReplica,
		Capabilities: types.Capabilities{Priority: 10},
		OwnerUserID:  "owner-1",
		ClusterToken: rt.cfg.ClusterAuthToken,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/cluster/register", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(clusterTokenHeader, rt.cfg.ClusterAuthToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out["node_id"])

	listReq, err := http.NewRequest(http.MethodGet, srv.URL+"/cluster/nodes", nil)
	require.NoError(t, err)
	listReq.Header.Set(clusterTokenHeader, rt.cfg.ClusterAuthToken)

	listResp, err := http.DefaultClient.Do(listReq)
	require.NoError(t, err)
	defer listResp.Body.Close()

	var nodes []*types.Node
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&nodes))
	assert.Len(t, nodes, 1)
	assert.Equal(t, "a.local", nodes[0].Hostname)
}

func TestClusterHandler_ValidateOwner(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Registry.Register("a.local", 1, types.NodeRoleMaster, types.Capabilities{}, "owner-1", "t")
	require.NoError(t, err)

	h := NewClusterHandler(rt)
	srv := httptest.NewServer(h)
	defer srv.Close()

	body, err := json.Marshal(validateOwnerRequest{OwnerUserID: "owner-1"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/cluster/validate-owner", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(clusterTokenHeader, rt.cfg.ClusterAuthToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result types.OwnerValidationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Consensus)
}

func TestClusterHandler_ApplyReplication_InvalidToken(t *testing.T) {
	rt := newTestRuntime(t)
	h := NewClusterHandler(rt)
	srv := httptest.NewServer(h)
	defer srv.Close()

	event := types.ReplicationEvent{EventID: "evt-1"}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/cluster/replication/apply", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(clusterTokenHeader, "wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
