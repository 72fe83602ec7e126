package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// replicationSourceKey and replicationTSKey are document metadata fields
// the engine uses to detect concurrent writes on apply. They are stored
// with the document like any other field; the Store returns them to every
// reader.
const (
	replicationSourceKey = "_replication_source"
	replicationTSKey     = "_replication_ts"
)

// conflictWindow bounds how close two writes from different sources must
// be, in wall-clock time, to be treated as concurrent rather than a
// plain successive update.
const conflictWindow = 5 * time.Second

// lagPerEvent is the constant-per-event lag estimate spec.md §4.4 names.
const lagPerEvent = 100 * time.Millisecond

// Config controls the Replication Engine's dispatch cadence, consistency
// mode, and transport.
type Config struct {
	Mode             types.ReplicationMode
	DispatchInterval time.Duration
	BatchSize        int
	ClusterToken     string
	HTTPClient       *http.Client
}

// DefaultConfig returns async mode with a 2-second dispatch tick and a
// 100-event batch, matching spec.md §4.4.
func DefaultConfig(clusterToken string) Config {
	return Config{
		Mode:             types.ReplicationAsync,
		DispatchInterval: 2 * time.Second,
		BatchSize:        100,
		ClusterToken:     clusterToken,
		HTTPClient:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Engine is the Replication Engine (C4): capture, dispatch, and apply.
type Engine struct {
	nodeID    string
	store     storage.Store
	registry  *registry.Registry
	broker    *events.Broker
	conflicts *ConflictResolver
	cfg       Config

	mu            sync.Mutex
	seqCache      int64
	seqInit       bool
	replicatedSeq map[string]int64

	watchCancel func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New creates an Engine for nodeID.
func New(nodeID string, store storage.Store, reg *registry.Registry, broker *events.Broker, conflicts *ConflictResolver, cfg Config) *Engine {
	return &Engine{
		nodeID:        nodeID,
		store:         store,
		registry:      reg,
		broker:        broker,
		conflicts:     conflicts,
		cfg:           cfg,
		replicatedSeq: make(map[string]int64),
		stopCh:        make(chan struct{}),
	}
}

// Start subscribes to the Store's change stream and launches the dispatch
// loop. Capture only acts while this node believes itself leader.
func (e *Engine) Start() {
	e.watchCancel = e.store.Watch(e.onMutation)
	e.wg.Add(1)
	go e.dispatchLoop()
}

// Stop unsubscribes from the change stream and stops the dispatch loop.
func (e *Engine) Stop() {
	if e.watchCancel != nil {
		e.watchCancel()
	}
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) isLeader() bool {
	leaderID, err := e.registry.CurrentLeader()
	return err == nil && leaderID != "" && leaderID == e.nodeID
}

func (e *Engine) onMutation(m storage.Mutation) {
	if !e.isLeader() {
		return
	}
	if _, err := e.CaptureEvent(m.Operation, m.Collection, m.DocumentID, m.Data); err != nil {
		log.WithComponent("replication").Error().Err(err).Msg("capture failed")
	}
}

// CaptureEvent synthesizes and persists a ReplicationEvent for one Store
// mutation, targeting every currently healthy replica. In sync mode it
// blocks until all targets ack; in semi-sync, until at least one does;
// in async (default) it returns immediately and lets the dispatch loop
// drain the event.
func (e *Engine) CaptureEvent(op types.ReplicationOperation, collection, documentID string, payload map[string]any) (*types.ReplicationEvent, error) {
	seq, err := e.nextSequence()
	if err != nil {
		return nil, err
	}

	event := &types.ReplicationEvent{
		SequenceNumber: seq,
		EventID:        uuid.NewString(),
		Operation:      op,
		Collection:     collection,
		DocumentID:     documentID,
		Payload:        payload,
		Timestamp:      time.Now(),
		SourceNodeID:   e.nodeID,
		TargetNodeIDs:  e.healthyReplicaIDs(),
		Status:         types.EventStatusPending,
	}

	if err := e.store.AppendReplicationEvent(event); err != nil {
		return nil, fmt.Errorf("append replication event: %w", err)
	}

	switch e.cfg.Mode {
	case types.ReplicationSync, types.ReplicationSemiSync:
		acked := e.dispatchEvent(event)
		if event.Status != types.EventStatusReplicated {
			return event, fmt.Errorf("replication failed: %s", event.ErrorMessage)
		}
		if e.cfg.Mode == types.ReplicationSync && acked < len(event.TargetNodeIDs) {
			return event, fmt.Errorf("replication failed: %d of %d targets acknowledged", acked, len(event.TargetNodeIDs))
		}
	}

	return event, nil
}

func (e *Engine) nextSequence() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.seqInit {
		max, err := e.store.MaxSequenceNumber(e.nodeID)
		if err != nil {
			return 0, err
		}
		e.seqCache = max
		e.seqInit = true
	}
	e.seqCache++
	return e.seqCache, nil
}

func (e *Engine) healthyReplicaIDs() []string {
	nodes, err := e.store.ListNodes()
	if err != nil {
		return nil
	}
	var ids []string
	for _, n := range nodes {
		if n.ID == e.nodeID {
			continue
		}
		if n.Status == types.NodeStatusHealthy {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.dispatchPending()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) dispatchPending() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchDuration)

	pending, err := e.store.ListPendingReplicationEvents(e.cfg.BatchSize)
	if err != nil {
		log.WithComponent("replication").Error().Err(err).Msg("list pending events failed")
		return
	}
	for _, evt := range pending {
		e.dispatchEvent(evt)
	}
	e.updateLagGauges()
}

func (e *Engine) dispatchEvent(event *types.ReplicationEvent) int {
	event.Status = types.EventStatusReplicating
	_ = e.store.UpdateReplicationEvent(event)

	success := false
	acked := 0
	var lastErr string
	for _, target := range event.TargetNodeIDs {
		if e.postApply(target, event) {
			success = true
			acked++
			e.mu.Lock()
			if event.SequenceNumber > e.replicatedSeq[target] {
				e.replicatedSeq[target] = event.SequenceNumber
			}
			e.mu.Unlock()
		} else {
			lastErr = fmt.Sprintf("target %s rejected event", target)
		}
	}

	now := time.Now()
	if success {
		event.Status = types.EventStatusReplicated
		event.ReplicatedAt = &now
		event.ErrorMessage = ""
	} else {
		event.RetryCount++
		event.Status = types.EventStatusFailed
		event.ErrorMessage = lastErr
		if e.broker != nil {
			e.broker.Publish(&events.Event{
				Type:     events.EventReplicationFailed,
				Message:  lastErr,
				Metadata: map[string]string{"event_id": event.EventID},
			})
		}
	}
	_ = e.store.UpdateReplicationEvent(event)
	metrics.ReplicationEventsTotal.WithLabelValues(string(event.Status)).Inc()
	return acked
}

func (e *Engine) postApply(targetNodeID string, event *types.ReplicationEvent) bool {
	target, err := e.store.GetNode(targetNodeID)
	if err != nil || target == nil {
		return false
	}

	body, err := json.Marshal(event)
	if err != nil {
		return false
	}

	scheme := "http"
	url := fmt.Sprintf("%s://%s:%d/cluster/replication/apply", scheme, target.Hostname, target.Port)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cluster-Token", e.cfg.ClusterToken)

	client := e.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (e *Engine) updateLagGauges() {
	maxSeq, err := e.store.MaxSequenceNumber(e.nodeID)
	if err != nil {
		return
	}
	e.mu.Lock()
	snapshot := make(map[string]int64, len(e.replicatedSeq))
	for k, v := range e.replicatedSeq {
		snapshot[k] = v
	}
	e.mu.Unlock()

	for target, last := range snapshot {
		lag := e.LagSeconds(target, maxSeq, last)
		metrics.ReplicationLagSeconds.WithLabelValues(target).Set(lag)
	}
}

// Lags returns the current estimated lag in seconds to every target this
// node has ever dispatched to, for callers (the cluster-health endpoint)
// that need an aggregate view without reaching into engine internals.
func (e *Engine) Lags() map[string]float64 {
	maxSeq, err := e.store.MaxSequenceNumber(e.nodeID)
	if err != nil {
		return nil
	}
	e.mu.Lock()
	snapshot := make(map[string]int64, len(e.replicatedSeq))
	for k, v := range e.replicatedSeq {
		snapshot[k] = v
	}
	e.mu.Unlock()

	lags := make(map[string]float64, len(snapshot))
	for target, last := range snapshot {
		lags[target] = e.LagSeconds(target, maxSeq, last)
	}
	return lags
}

// LagSeconds estimates replication lag to a target in seconds, returning
// +Inf if the target has never replicated anything from this source.
func (e *Engine) LagSeconds(targetNodeID string, maxSeq, lastReplicated int64) float64 {
	if lastReplicated == 0 {
		return math.Inf(1)
	}
	behind := maxSeq - lastReplicated
	if behind < 0 {
		behind = 0
	}
	return float64(behind) * lagPerEvent.Seconds()
}

// ValidateClusterToken reports whether rawToken matches the Engine's
// configured shared secret, comparing by hash so the raw secret is never
// held any longer than necessary.
func (e *Engine) ValidateClusterToken(rawToken string) bool {
	return security.HashClusterToken(rawToken) == security.HashClusterToken(e.cfg.ClusterToken)
}

// HandleApply executes a ReplicationEvent received from its source node
// against the local Store, exactly once. Called by the cluster HTTP
// surface's POST /cluster/replication/apply handler.
func (e *Engine) HandleApply(event *types.ReplicationEvent, rawToken string) error {
	if !e.ValidateClusterToken(rawToken) {
		return fmt.Errorf("invalid cluster token")
	}

	applied, err := e.store.HasApplied(event.EventID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	payload, err := e.resolveIfConcurrent(event)
	if err != nil {
		return err
	}

	if err := e.applyOperation(event, payload); err != nil {
		return err
	}

	return e.store.MarkApplied(event.EventID)
}

func (e *Engine) resolveIfConcurrent(event *types.ReplicationEvent) (map[string]any, error) {
	existing, found, err := e.store.GetDocument(event.Collection, event.DocumentID)
	if err != nil {
		return nil, err
	}
	if !found || event.Operation == types.OpDelete {
		return event.Payload, nil
	}

	existingSource, _ := existing[replicationSourceKey].(string)
	existingTSRaw, _ := existing[replicationTSKey].(string)
	existingTS, parseErr := time.Parse(time.RFC3339Nano, existingTSRaw)

	if existingSource == "" || existingSource == event.SourceNodeID || parseErr != nil {
		return event.Payload, nil
	}
	if event.Timestamp.Sub(existingTS).Abs() >= conflictWindow {
		return event.Payload, nil
	}

	versions := []types.ConflictVersion{
		{SourceNodeID: existingSource, Timestamp: existingTS, Data: existing},
		{SourceNodeID: event.SourceNodeID, Timestamp: event.Timestamp, Data: event.Payload},
	}
	return e.conflicts.Resolve(event.Collection, event.DocumentID, versions)
}

func (e *Engine) applyOperation(event *types.ReplicationEvent, payload map[string]any) error {
	switch event.Operation {
	case types.OpDelete:
		return e.store.DeleteDocument(event.Collection, event.DocumentID)
	case types.OpInsert, types.OpReplace:
		return e.putWithMetadata(event, payload)
	case types.OpUpdate:
		existing, found, err := e.store.GetDocument(event.Collection, event.DocumentID)
		if err != nil {
			return err
		}
		merged := map[string]any{}
		if found {
			for k, v := range existing {
				merged[k] = v
			}
		}
		for k, v := range payload {
			merged[k] = v
		}
		return e.putWithMetadata(event, merged)
	default:
		return fmt.Errorf("unknown replication operation %q", event.Operation)
	}
}

func (e *Engine) putWithMetadata(event *types.ReplicationEvent, payload map[string]any) error {
	doc := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		doc[k] = v
	}
	doc[replicationSourceKey] = event.SourceNodeID
	doc[replicationTSKey] = event.Timestamp.Format(time.RFC3339Nano)
	return e.store.PutDocument(event.Collection, event.DocumentID, doc)
}
