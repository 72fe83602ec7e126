package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// ErrNotHealthy is returned by Promote when the target node is not healthy
// and the caller did not pass force=true.
type ErrNotHealthy struct {
	NodeID string
}

func (e *ErrNotHealthy) Error() string {
	return fmt.Sprintf("node %s is not healthy", e.NodeID)
}

// ErrNodeNotFound is returned when an operation references an unknown node id.
type ErrNodeNotFound struct {
	NodeID string
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %s not found", e.NodeID)
}

// LeaderElector is the narrow view of pkg/election that current_leader
// falls back to when no leader is cached. Defined here to avoid an import
// cycle (pkg/election depends on pkg/registry to drive Promote/Demote).
type LeaderElector interface {
	ElectLeader() (string, error)
}

// Registry owns the cluster_nodes collection: registration, role changes,
// and the cached leader id.
type Registry struct {
	store   storage.Store
	broker  *events.Broker
	elector LeaderElector

	mu         sync.RWMutex
	leaderID   string
}

// New creates a Registry backed by store. SetElector must be called before
// CurrentLeader is used with no cached leader, or it simply returns "".
func New(store storage.Store, broker *events.Broker) *Registry {
	return &Registry{store: store, broker: broker}
}

// SetElector wires the Leader Elector used as the fallback for CurrentLeader.
func (r *Registry) SetElector(e LeaderElector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elector = e
}

// Register upserts a node by hostname+port identity, idempotent across
// repeated calls from the same physical node. The cluster token is never
// stored or logged in raw form — only its SHA-256 hash.
func (r *Registry) Register(hostname string, port int, role types.NodeRole, capabilities types.Capabilities, ownerUserID, clusterToken string) (string, error) {
	existing, err := r.findByAddress(hostname, port)
	if err != nil {
		return "", err
	}

	now := time.Now()
	tokenHash := security.HashClusterToken(clusterToken)

	if existing != nil {
		existing.Role = role
		existing.Capabilities = capabilities
		existing.OwnerUserID = ownerUserID
		existing.ClusterTokenHash = tokenHash
		existing.UpdatedAt = now
		if err := r.store.UpdateNode(existing); err != nil {
			return "", fmt.Errorf("update node: %w", err)
		}
		r.recordEvent("node.registered", existing.ID, "node re-registered", nil)
		r.publish(events.EventNodeRegistered, existing.ID, "node re-registered")
		return existing.ID, nil
	}

	node := &types.Node{
		ID:               uuid.NewString(),
		Hostname:         hostname,
		Port:             port,
		Role:             role,
		Status:           types.NodeStatusJoining,
		Capabilities:     capabilities,
		OwnerUserID:      ownerUserID,
		ClusterTokenHash: tokenHash,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	node.Health.LastHeartbeat = now

	if err := r.store.CreateNode(node); err != nil {
		return "", fmt.Errorf("create node: %w", err)
	}

	node.Status = types.NodeStatusHealthy
	node.UpdatedAt = time.Now()
	if err := r.store.UpdateNode(node); err != nil {
		return "", fmt.Errorf("activate node: %w", err)
	}

	log.WithNodeID(node.ID).Info().
		Str("hostname", hostname).
		Int("port", port).
		Str("role", string(role)).
		Msg("node registered")

	r.recordEvent("node.registered", node.ID, "node joined the cluster", map[string]any{
		"hostname": hostname,
		"port":     port,
		"role":     string(role),
	})
	r.publish(events.EventNodeRegistered, node.ID, "node joined the cluster")

	return node.ID, nil
}

func (r *Registry) findByAddress(hostname string, port int) (*types.Node, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	for _, n := range nodes {
		if n.Hostname == hostname && n.Port == port {
			return n, nil
		}
	}
	return nil, nil
}

// GetNode returns a single node by id.
func (r *Registry) GetNode(id string) (*types.Node, error) {
	node, err := r.store.GetNode(id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, &ErrNodeNotFound{NodeID: id}
	}
	return node, nil
}

// ListNodes returns nodes matching the optional role and status filters.
// Either filter may be the zero value to mean "any".
func (r *Registry) ListNodes(role types.NodeRole, status types.NodeStatus) ([]*types.Node, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return nil, err
	}
	if role == "" && status == "" {
		return nodes, nil
	}
	filtered := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		if role != "" && n.Role != role {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		filtered = append(filtered, n)
	}
	return filtered, nil
}

// RemoveNode deletes a node from the registry and records a departure event.
func (r *Registry) RemoveNode(id string) error {
	node, err := r.store.GetNode(id)
	if err != nil {
		return err
	}
	if node == nil {
		return &ErrNodeNotFound{NodeID: id}
	}
	if err := r.store.DeleteNode(id); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}

	r.mu.Lock()
	if r.leaderID == id {
		r.leaderID = ""
	}
	r.mu.Unlock()

	r.recordEvent("node.removed", id, "node left the cluster", nil)
	r.publish(events.EventNodeRemoved, id, "node removed from cluster")
	return nil
}

// Promote sets node id as master. A no-op returning true if it already is.
// Fails with ErrNotHealthy if the node is unhealthy and force is false.
func (r *Registry) Promote(id string, force bool) (bool, error) {
	node, err := r.store.GetNode(id)
	if err != nil {
		return false, err
	}
	if node == nil {
		return false, &ErrNodeNotFound{NodeID: id}
	}
	if node.Role == types.NodeRoleMaster {
		return true, nil
	}
	if !force && node.Status != types.NodeStatusHealthy {
		return false, &ErrNotHealthy{NodeID: id}
	}

	node.Role = types.NodeRoleMaster
	node.Capabilities.SupportsWrites = true
	node.Capabilities.Priority = 100
	node.UpdatedAt = time.Now()
	if err := r.store.UpdateNode(node); err != nil {
		return false, fmt.Errorf("promote node: %w", err)
	}

	r.mu.Lock()
	r.leaderID = id
	r.mu.Unlock()

	log.WithNodeID(id).Info().Bool("forced", force).Msg("node promoted to master")
	r.recordEvent("node_promoted", id, "node promoted to master", map[string]any{"forced": force})
	r.publish(events.EventNodePromoted, id, "node promoted to master")
	return true, nil
}

// Demote sets node id as replica. Mirrors Promote's field assignments.
func (r *Registry) Demote(id string) (bool, error) {
	node, err := r.store.GetNode(id)
	if err != nil {
		return false, err
	}
	if node == nil {
		return false, &ErrNodeNotFound{NodeID: id}
	}
	if node.Role == types.NodeRoleReplica {
		return true, nil
	}

	node.Role = types.NodeRoleReplica
	node.Capabilities.SupportsWrites = false
	node.Capabilities.Priority = 50
	node.UpdatedAt = time.Now()
	if err := r.store.UpdateNode(node); err != nil {
		return false, fmt.Errorf("demote node: %w", err)
	}

	r.mu.Lock()
	if r.leaderID == id {
		r.leaderID = ""
	}
	r.mu.Unlock()

	log.WithNodeID(id).Info().Msg("node demoted to replica")
	r.recordEvent("node_demoted", id, "node demoted to replica", nil)
	r.publish(events.EventNodeDemoted, id, "node demoted to replica")
	return true, nil
}

// CurrentLeader returns the cached leader id, falling back to the Leader
// Elector (if wired) when no leader is cached.
func (r *Registry) CurrentLeader() (string, error) {
	r.mu.RLock()
	cached := r.leaderID
	elector := r.elector
	r.mu.RUnlock()

	if cached != "" {
		return cached, nil
	}
	if elector == nil {
		return "", nil
	}

	id, err := elector.ElectLeader()
	if err != nil {
		return "", err
	}
	if id != "" {
		r.mu.Lock()
		r.leaderID = id
		r.mu.Unlock()
	}
	return id, nil
}

// SetCachedLeader lets the Leader Elector push a freshly elected leader
// into the registry's cache without going through CurrentLeader.
func (r *Registry) SetCachedLeader(id string) {
	r.mu.Lock()
	r.leaderID = id
	r.mu.Unlock()
}

// CachedLeader returns the cached leader id with no elector fallback. The
// Leader Elector itself must use this instead of CurrentLeader when it
// needs the previous leader: CurrentLeader's fallback calls back into the
// elector, which would recurse forever on the first election, before
// anything has been cached yet.
func (r *Registry) CachedLeader() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.leaderID
}

// UpdateStatus sets a node's lifecycle status, used by the quorum monitor's
// health sweeper and by manual operator intervention.
func (r *Registry) UpdateStatus(id string, status types.NodeStatus) error {
	node, err := r.store.GetNode(id)
	if err != nil {
		return err
	}
	if node == nil {
		return &ErrNodeNotFound{NodeID: id}
	}
	if node.Status == status {
		return nil
	}

	previous := node.Status
	node.Status = status
	node.UpdatedAt = time.Now()
	if err := r.store.UpdateNode(node); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if status == types.NodeStatusHealthy && previous != types.NodeStatusHealthy {
		r.publish(events.EventNodeHealthy, id, "node is healthy")
	} else if status == types.NodeStatusUnhealthy && previous != types.NodeStatusUnhealthy {
		r.publish(events.EventNodeUnhealthy, id, "node is unhealthy")
	}
	return nil
}

func (r *Registry) recordEvent(eventType, nodeID, message string, data map[string]any) {
	evt := &types.ClusterEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		Message:   message,
		Data:      data,
	}
	if err := r.store.AppendClusterEvent(evt); err != nil {
		log.WithComponent("registry").Error().Err(err).Msg("failed to append cluster event")
	}
}

func (r *Registry) publish(eventType events.EventType, nodeID, message string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: map[string]string{"node_id": nodeID},
	})
}
