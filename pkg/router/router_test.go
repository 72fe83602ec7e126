package router

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

func backendHost(rawURL string) string {
	u, _ := url.Parse(rawURL)
	return u.Hostname()
}

func backendPort(rawURL string) int {
	u, _ := url.Parse(rawURL)
	port, _ := strconv.Atoi(u.Port())
	return port
}

func newTestRouter(t *testing.T) (*Router, storage.Store, *registry.Registry) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	reg := registry.New(store, broker)
	rt := New("self", reg, DefaultConfig(), "shared-secret")
	return rt, store, reg
}

func masterNode(id, host string, port int) *types.Node {
	return &types.Node{
		ID: id, Hostname: host, Port: port,
		Role:   types.NodeRoleMaster,
		Status: types.NodeStatusHealthy,
		Capabilities: types.Capabilities{
			SupportsWrites: true, SupportsReads: true, Priority: 50,
		},
	}
}

func TestRoute_ReadWithNoCandidatesFallsBackLocal(t *testing.T) {
	rt, _, _ := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/cluster/health", nil)
	w := httptest.NewRecorder()

	err := rt.Route(w, r, "")
	assert.NoError(t, err)
}

func TestRoute_WriteWithNoCandidatesReturnsUnavailable(t *testing.T) {
	rt, _, _ := newTestRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/documents", nil)
	w := httptest.NewRecorder()

	err := rt.Route(w, r, "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRoute_WriteResolvesLocallyWhenSelfIsOnlyMaster(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	require.NoError(t, store.CreateNode(masterNode("self", "127.0.0.1", 9000)))

	r := httptest.NewRequest(http.MethodPost, "/documents", nil)
	w := httptest.NewRecorder()

	err := rt.Route(w, r, "")
	assert.NoError(t, err)
}

func TestRoute_WriteForwardsToRemoteMaster(t *testing.T) {
	var gotPath string
	var gotHeader string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Forwarded-From")
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	rt, store, _ := newTestRouter(t)
	require.NoError(t, store.CreateNode(masterNode("remote", backendHost(backend.URL), backendPort(backend.URL))))

	r := httptest.NewRequest(http.MethodPost, "/documents", nil)
	w := httptest.NewRecorder()

	err := rt.Route(w, r, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/documents", gotPath)
	assert.Equal(t, "self", gotHeader)
}

func TestRoute_WriteOpensCircuitAfterRepeatedFailures(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	cfg := DefaultConfig()
	cfg.CircuitBreakerThreshold = 1
	rt = New("self", registry.New(store, nil), cfg, "shared-secret")
	require.NoError(t, store.CreateNode(masterNode("down", "127.0.0.1", 1)))

	r := httptest.NewRequest(http.MethodPost, "/documents", nil)
	w := httptest.NewRecorder()
	require.NoError(t, rt.Route(w, r, ""))

	assert.Equal(t, CircuitOpen, rt.breakers.State("down"))
}
