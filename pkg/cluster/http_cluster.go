package cluster

import (
	"encoding/json"
	"net/http"

	"github.com/sbdlabs/clustercore/pkg/clustererr"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// clusterTokenHeader is the auth header every cluster-internal endpoint
// requires, per spec §6.
const clusterTokenHeader = "X-Cluster-Token"

// ClusterHandler serves the cluster-internal HTTP surface named in
// spec §6: registration, replication apply, health, node CRUD,
// promote/demote, lag, and owner validation.
type ClusterHandler struct {
	rt  *Runtime
	mux *http.ServeMux
}

// NewClusterHandler builds the cluster-internal HTTP surface bound to rt.
func NewClusterHandler(rt *Runtime) *ClusterHandler {
	h := &ClusterHandler{rt: rt, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /cluster/register", h.authenticated(h.register))
	h.mux.HandleFunc("POST /cluster/replication/apply", h.applyReplication)
	h.mux.HandleFunc("GET /cluster/health", h.authenticated(h.health))
	h.mux.HandleFunc("GET /cluster/nodes", h.authenticated(h.listNodes))
	h.mux.HandleFunc("GET /cluster/nodes/{id}", h.authenticated(h.getNode))
	h.mux.HandleFunc("DELETE /cluster/nodes/{id}", h.authenticated(h.removeNode))
	h.mux.HandleFunc("POST /cluster/nodes/promote", h.authenticated(h.promote))
	h.mux.HandleFunc("POST /cluster/nodes/{id}/demote", h.authenticated(h.demote))
	h.mux.HandleFunc("GET /cluster/replication/lag", h.authenticated(h.lag))
	h.mux.HandleFunc("POST /cluster/validate-owner", h.authenticated(h.validateOwner))
	h.mux.HandleFunc("GET /cluster/internal/check-user/{user_id}", h.authenticated(h.checkUser))
	return h
}

func (h *ClusterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// authenticated wraps next, rejecting requests whose X-Cluster-Token
// header does not hash to the configured cluster auth token. Per spec
// §7: missing token -> 401, invalid token -> 403.
func (h *ClusterHandler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(clusterTokenHeader)
		if token == "" {
			writeError(w, clustererr.New(clustererr.KindAuthN, "missing X-Cluster-Token header"))
			return
		}
		if security.HashClusterToken(token) != security.HashClusterToken(h.rt.cfg.ClusterAuthToken) {
			writeError(w, clustererr.New(clustererr.KindAuthZ, "invalid cluster token"))
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := clustererr.ToJSONBody(err)
	writeJSON(w, status, body)
}

type registerRequest struct {
	Hostname     string            `json:"hostname"`
	Port         int               `json:"port"`
	Role         types.NodeRole    `json:"role"`
	Capabilities types.Capabilities `json:"capabilities"`
	OwnerUserID  string            `json:"owner_user_id"`
	ClusterToken string            `json:"cluster_token"`
}

func (h *ClusterHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "malformed register request", err))
		return
	}
	id, err := h.rt.Registry.Register(req.Hostname, req.Port, req.Role, req.Capabilities, req.OwnerUserID, req.ClusterToken)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "register failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"node_id": id})
}

func (h *ClusterHandler) applyReplication(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(clusterTokenHeader)
	var event types.ReplicationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "malformed replication event", err))
		return
	}
	if !h.rt.Engine.ValidateClusterToken(token) {
		writeError(w, clustererr.New(clustererr.KindAuthZ, "invalid cluster token"))
		return
	}
	if err := h.rt.Engine.HandleApply(&event, token); err != nil {
		log.WithComponent("cluster-http").Warn().Err(err).Str("event_id", event.EventID).Msg("apply failed")
		writeError(w, clustererr.Wrap(clustererr.KindReplication, "apply failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *ClusterHandler) health(w http.ResponseWriter, r *http.Request) {
	health, err := h.rt.Health()
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "health unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (h *ClusterHandler) listNodes(w http.ResponseWriter, r *http.Request) {
	role := types.NodeRole(r.URL.Query().Get("role"))
	status := types.NodeStatus(r.URL.Query().Get("status"))
	nodes, err := h.rt.Registry.ListNodes(role, status)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "list nodes failed", err))
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *ClusterHandler) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.rt.Registry.GetNode(r.PathValue("id"))
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "node not found", err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *ClusterHandler) removeNode(w http.ResponseWriter, r *http.Request) {
	if err := h.rt.Registry.RemoveNode(r.PathValue("id")); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "remove node failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type promoteRequest struct {
	NodeID string `json:"node_id"`
	Force  bool   `json:"force"`
}

func (h *ClusterHandler) promote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "malformed promote request", err))
		return
	}
	ok, err := h.rt.Registry.Promote(req.NodeID, req.Force)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindConsistency, "promote failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"promoted": ok})
}

func (h *ClusterHandler) demote(w http.ResponseWriter, r *http.Request) {
	ok, err := h.rt.Registry.Demote(r.PathValue("id"))
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindConsistency, "demote failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"demoted": ok})
}

func (h *ClusterHandler) lag(w http.ResponseWriter, r *http.Request) {
	lags := h.rt.Engine.Lags()
	max := 0.0
	for _, v := range lags {
		if v > max {
			max = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]float64{"lag_seconds": max})
}

type validateOwnerRequest struct {
	OwnerUserID string   `json:"owner_user_id"`
	TargetNodes []string `json:"target_nodes,omitempty"`
}

func (h *ClusterHandler) validateOwner(w http.ResponseWriter, r *http.Request) {
	var req validateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "malformed validate-owner request", err))
		return
	}
	result, err := h.rt.Registry.ValidateOwner(req.OwnerUserID)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "validate-owner failed", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ClusterHandler) checkUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	nodes, err := h.rt.Registry.ListNodes("", "")
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "check-user failed", err))
		return
	}
	exists := false
	for _, n := range nodes {
		if n.OwnerUserID == userID {
			exists = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}
