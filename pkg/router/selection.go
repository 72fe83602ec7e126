package router

import (
	"hash/fnv"
	"sync"

	"github.com/sbdlabs/clustercore/pkg/types"
)

// Algorithm names accepted by types.LoadBalancingConfig.Algorithm and
// Config.Algorithm.
const (
	AlgorithmRoundRobin         = "round-robin"
	AlgorithmLeastConnections   = "least-connections"
	AlgorithmWeightedRoundRobin = "weighted-round-robin"
	AlgorithmIPHash             = "ip-hash"
	AlgorithmLeastResponseTime  = "least-response-time"
)

const responseTimeWindow = 100

// nodeStats tracks the rolling counters Select and GetNodeStats read.
type nodeStats struct {
	activeConnections int
	totalRequests     int64
	responseTimes     []float64 // ring of the last responseTimeWindow samples
	responseTimePos   int
}

func (s *nodeStats) avgResponseTime() float64 {
	if len(s.responseTimes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.responseTimes {
		sum += v
	}
	return sum / float64(len(s.responseTimes))
}

func (s *nodeStats) recordResponseTime(seconds float64) {
	if cap(s.responseTimes) < responseTimeWindow {
		s.responseTimes = append(s.responseTimes, seconds)
		return
	}
	if len(s.responseTimes) < responseTimeWindow {
		s.responseTimes = append(s.responseTimes, seconds)
		return
	}
	s.responseTimes[s.responseTimePos%responseTimeWindow] = seconds
	s.responseTimePos++
}

// Selector picks a candidate node for a routed request and tracks the
// per-node counters the algorithms and circuit breaker need.
type Selector struct {
	mu           sync.Mutex
	stats        map[string]*nodeStats
	roundRobinAt int
	sticky       map[string]string // client_id -> node id
}

// NewSelector creates an empty Selector.
func NewSelector() *Selector {
	return &Selector{
		stats:  make(map[string]*nodeStats),
		sticky: make(map[string]string),
	}
}

func (s *Selector) statsFor(nodeID string) *nodeStats {
	st, ok := s.stats[nodeID]
	if !ok {
		st = &nodeStats{}
		s.stats[nodeID] = st
	}
	return st
}

// IncrementConnection records a new active connection to nodeID.
func (s *Selector) IncrementConnection(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsFor(nodeID).activeConnections++
}

// DecrementConnection releases an active connection to nodeID.
func (s *Selector) DecrementConnection(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsFor(nodeID)
	if st.activeConnections > 0 {
		st.activeConnections--
	}
}

// RecordRequest updates the request counter and response-time window for
// nodeID after a routed request completes.
func (s *Selector) RecordRequest(nodeID string, durationSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsFor(nodeID)
	st.totalRequests++
	st.recordResponseTime(durationSeconds)
}

// NodeStats is the externally visible snapshot GetNodeStats returns.
type NodeStats struct {
	ActiveConnections  int
	TotalRequests      int64
	AvgResponseSeconds float64
}

// GetNodeStats returns a snapshot of nodeID's counters.
func (s *Selector) GetNodeStats(nodeID string) NodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsFor(nodeID)
	return NodeStats{
		ActiveConnections:  st.activeConnections,
		TotalRequests:      st.totalRequests,
		AvgResponseSeconds: st.avgResponseTime(),
	}
}

// Forget drops any sticky-session mapping and counters for nodeID,
// called when a node leaves the cluster.
func (s *Selector) Forget(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stats, nodeID)
	for client, mapped := range s.sticky {
		if mapped == nodeID {
			delete(s.sticky, client)
		}
	}
}

// Select picks one of candidates using algorithm. clientID is consulted
// for ip-hash and sticky sessions; it may be empty.
func (s *Selector) Select(candidates []*types.Node, algorithm string, clientID string, sticky bool) *types.Node {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		if sticky && clientID != "" {
			s.rememberSticky(clientID, candidates[0].ID)
		}
		return candidates[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sticky && clientID != "" {
		if mapped, ok := s.sticky[clientID]; ok {
			for _, n := range candidates {
				if n.ID == mapped {
					return n
				}
			}
		}
	}

	var picked *types.Node
	switch algorithm {
	case AlgorithmLeastConnections:
		picked = s.pickLeastConnections(candidates)
	case AlgorithmWeightedRoundRobin:
		picked = s.pickWeightedRoundRobin(candidates)
	case AlgorithmIPHash:
		picked = s.pickIPHash(candidates, clientID)
	case AlgorithmLeastResponseTime:
		picked = s.pickLeastResponseTime(candidates)
	default:
		picked = s.pickRoundRobin(candidates)
	}

	if sticky && clientID != "" && picked != nil {
		s.sticky[clientID] = picked.ID
	}
	return picked
}

func (s *Selector) rememberSticky(clientID, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sticky[clientID] = nodeID
}

func (s *Selector) pickRoundRobin(candidates []*types.Node) *types.Node {
	s.roundRobinAt = (s.roundRobinAt + 1) % len(candidates)
	return candidates[s.roundRobinAt]
}

func (s *Selector) pickLeastConnections(candidates []*types.Node) *types.Node {
	best := candidates[0]
	bestCount := s.statsFor(best.ID).activeConnections
	for _, n := range candidates[1:] {
		c := s.statsFor(n.ID).activeConnections
		if c < bestCount {
			best, bestCount = n, c
		}
	}
	return best
}

func (s *Selector) pickWeightedRoundRobin(candidates []*types.Node) *types.Node {
	total := 0
	for _, n := range candidates {
		w := n.Capabilities.Priority
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total == 0 {
		return s.pickRoundRobin(candidates)
	}
	s.roundRobinAt = (s.roundRobinAt + 1) % total
	cursor := s.roundRobinAt
	for _, n := range candidates {
		w := n.Capabilities.Priority
		if w <= 0 {
			w = 1
		}
		if cursor < w {
			return n
		}
		cursor -= w
	}
	return candidates[len(candidates)-1]
}

func (s *Selector) pickIPHash(candidates []*types.Node, clientID string) *types.Node {
	if clientID == "" {
		return s.pickRoundRobin(candidates)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	idx := int(h.Sum32()) % len(candidates)
	if idx < 0 {
		idx += len(candidates)
	}
	return candidates[idx]
}

func (s *Selector) pickLeastResponseTime(candidates []*types.Node) *types.Node {
	best := candidates[0]
	bestAvg := s.statsFor(best.ID).avgResponseTime()
	for _, n := range candidates[1:] {
		avg := s.statsFor(n.ID).avgResponseTime()
		if avg < bestAvg {
			best, bestAvg = n, avg
		}
	}
	return best
}
