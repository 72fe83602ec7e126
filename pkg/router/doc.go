/*
Package router implements the Request Router + Load Balancer (C5):
routing decisions between handling a request locally and forwarding it to
another cluster node, candidate selection algorithms, sticky sessions,
and a per-node circuit breaker.

# Routing

Route inspects the HTTP method to classify the request as a write (target
must be role=master, healthy, supports_writes) or a read (target any
healthy or degraded node with supports_reads, optionally offloaded to
secondaries). If this node is itself the selected candidate, Route
returns nil without writing to the ResponseWriter so the caller handles
the request locally; otherwise it forwards the request, writes the
proxied response to the ResponseWriter, and also returns nil.

# Selection algorithms

Selector.Select implements round-robin, least-connections, weighted-round-
robin (weight = capabilities.priority), ip-hash, and least-response-time,
chosen by Config.Algorithm and overridable per call.

# Circuit breaker

Each node has an independent closed/open/half-open state machine
(circuit.go) gating whether Route includes it among the candidates it
passes to Select.

# See Also

  - pkg/registry — the node list selection filters over
  - pkg/events — circuit.opened/circuit.closed notifications
*/
package router
