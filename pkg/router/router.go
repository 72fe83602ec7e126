package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/registry"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// ErrUnavailable is returned by Route when a write has no eligible
// candidate anywhere in the cluster. Reads never return it; they fall
// back to local handling instead.
var ErrUnavailable = errors.New("router: no healthy candidate available")

// hopByHopHeaders are stripped before forwarding, per RFC 7230 §6.1.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// ReadPreference controls whether reads may be offloaded to replicas.
type ReadPreference string

const (
	ReadPreferencePrimary   ReadPreference = "primary"
	ReadPreferenceSecondary ReadPreference = "secondary"
)

// Config controls Router's selection algorithm and circuit breaker knobs.
type Config struct {
	Algorithm              string
	StickySessions         bool
	CircuitBreakerEnabled  bool
	CircuitBreakerThreshold int
	CircuitBreakerTimeout  time.Duration
	ReadPreference         ReadPreference
	ForwardTimeout         time.Duration
}

// DefaultConfig returns round-robin selection with a 5-failure/30s
// circuit breaker, matching the values used in the worked examples.
func DefaultConfig() Config {
	return Config{
		Algorithm:               AlgorithmRoundRobin,
		StickySessions:          false,
		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		ReadPreference:          ReadPreferencePrimary,
		ForwardTimeout:          10 * time.Second,
	}
}

// writeMethods classifies the HTTP verbs that must land on the master.
var writeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Router decides whether an incoming request should be handled locally
// or forwarded to another cluster node, and performs the forwarding.
type Router struct {
	nodeID       string
	registry     *registry.Registry
	selector     *Selector
	breakers     *CircuitBreakers
	cfg          Config
	clusterToken string
}

// New builds a Router bound to this node's identity.
func New(nodeID string, reg *registry.Registry, cfg Config, clusterToken string) *Router {
	var breakers *CircuitBreakers
	if cfg.CircuitBreakerEnabled {
		breakers = NewCircuitBreakers(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout, nil)
	}
	return &Router{
		nodeID:       nodeID,
		registry:     reg,
		selector:     NewSelector(),
		breakers:     breakers,
		cfg:          cfg,
		clusterToken: clusterToken,
	}
}

// isWrite classifies r by HTTP method.
func isWrite(r *http.Request) bool {
	return writeMethods[r.Method]
}

func (rt *Router) candidates(write bool) ([]*types.Node, error) {
	var nodes []*types.Node
	var err error
	if write {
		nodes, err = rt.registry.ListNodes(types.NodeRoleMaster, types.NodeStatusHealthy)
	} else {
		nodes, err = rt.registry.ListNodes("", "")
	}
	if err != nil {
		return nil, err
	}

	out := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		if write {
			if !n.Capabilities.SupportsWrites {
				continue
			}
		} else {
			if n.Status != types.NodeStatusHealthy && n.Status != types.NodeStatusDegraded {
				continue
			}
			if !n.Capabilities.SupportsReads {
				continue
			}
		}
		if rt.breakers != nil && !rt.breakers.Allows(n.ID) {
			continue
		}
		out = append(out, n)
	}

	if !write && rt.cfg.ReadPreference == ReadPreferenceSecondary {
		out = offloadToSecondaries(out, rt.nodeID)
	}
	return out, nil
}

// offloadToSecondaries drops this node from the read candidate set when
// it is the master and at least one healthy replica can serve the read
// instead, implementing secondary read offload.
func offloadToSecondaries(candidates []*types.Node, selfID string) []*types.Node {
	hasReplica := false
	selfIsMaster := false
	for _, n := range candidates {
		if n.Role == types.NodeRoleReplica {
			hasReplica = true
		}
		if n.ID == selfID && n.Role == types.NodeRoleMaster {
			selfIsMaster = true
		}
	}
	if !selfIsMaster || !hasReplica {
		return candidates
	}
	out := make([]*types.Node, 0, len(candidates))
	for _, n := range candidates {
		if n.ID == selfID {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Route selects a target for r and returns nil in two cases: the request
// is to be handled locally (nothing has been written to w), or it was
// forwarded and the proxied response has been written to w. ErrUnavailable is
// returned only for writes with no eligible candidate; reads always
// resolve to either a remote forward or local handling.
func (rt *Router) Route(w http.ResponseWriter, r *http.Request, clientID string) error {
	start := time.Now()
	write := isWrite(r)

	candidates, err := rt.candidates(write)
	if err != nil {
		metrics.RoutedRequestsTotal.WithLabelValues("error").Inc()
		return err
	}

	target := rt.selector.Select(candidates, rt.cfg.Algorithm, clientID, rt.cfg.StickySessions)

	if target == nil {
		if write {
			metrics.RoutedRequestsTotal.WithLabelValues("unavailable").Inc()
			return ErrUnavailable
		}
		metrics.RoutedRequestsTotal.WithLabelValues("local").Inc()
		return nil // read falls back to local handling
	}

	if target.ID == rt.nodeID {
		metrics.RoutedRequestsTotal.WithLabelValues("local").Inc()
		return nil
	}

	metrics.RoutedRequestsTotal.WithLabelValues("forwarded").Inc()
	defer func() {
		metrics.RouteDuration.WithLabelValues(rt.cfg.Algorithm).Observe(time.Since(start).Seconds())
	}()

	rt.selector.IncrementConnection(target.ID)
	defer rt.selector.DecrementConnection(target.ID)

	reqStart := time.Now()
	success := rt.forward(w, r, target)
	rt.selector.RecordRequest(target.ID, time.Since(reqStart).Seconds())
	if rt.breakers != nil {
		rt.breakers.RecordResult(target.ID, success)
	}
	return nil
}

// forward proxies r to target, reporting whether the backend answered
// without a transport-level failure.
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, target *types.Node) bool {
	targetURL, err := url.Parse(fmt.Sprintf("http://%s:%d", target.Hostname, target.Port))
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return false
	}

	ok := true
	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	proxy.Transport = &http.Transport{}
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		for _, h := range hopByHopHeaders {
			req.Header.Del(h)
		}
		req.Header.Set("X-Forwarded-From", rt.nodeID)
		if rt.clusterToken != "" {
			req.Header.Set("X-Cluster-Token", rt.clusterToken)
		}
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		ok = false
		log.WithComponent("router").Warn().Err(err).Str("target", target.ID).Msg("forward failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)
	return ok
}

// ResetCircuit forces nodeID's breaker closed (administrative override).
func (rt *Router) ResetCircuit(nodeID string) {
	if rt.breakers != nil {
		rt.breakers.Reset(nodeID)
	}
}

// GetNodeStats returns the router's view of nodeID's load/circuit state.
func (rt *Router) GetNodeStats(nodeID string) (NodeStats, CircuitState) {
	state := CircuitClosed
	if rt.breakers != nil {
		state = rt.breakers.State(nodeID)
	}
	return rt.selector.GetNodeStats(nodeID), state
}

// Forget drops a node's counters and sticky-session mappings, called
// when it leaves the cluster.
func (rt *Router) Forget(nodeID string) {
	rt.selector.Forget(nodeID)
}
