/*
Package health provides HTTP and TCP probe mechanisms used to check
whether a peer cluster node is reachable.

This is the building block for the Health & Quorum Monitor's outbound
heartbeat probe (~2s timeout per call), which asks "is this other node
answering" without pulling in a service-mesh client. The Request Router
does not use this package.

# Architecture

	Checker interface: Check(ctx) Result, Type() CheckType
	    ├── HTTPChecker — GET a node's /cluster/health
	    └── TCPChecker  — dial a node's advertised host:port

# Usage

	checker := health.NewHTTPChecker("http://10.0.0.5:7070/cluster/health").
		WithTimeout(2 * time.Second)
	result := checker.Check(ctx)
	if !result.Healthy {
		// count toward failure_threshold
	}

Status tracks ConsecutiveFailures/ConsecutiveSuccesses against a Config's
Retries threshold. pkg/quorum does not use Status: it marks a node
unhealthy from its stale heartbeat, optionally confirmed by one probe
Result.
*/
package health
