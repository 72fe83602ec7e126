package router

import (
	"sync"
	"time"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/metrics"
)

// CircuitState is one of the three breaker states spec.md §4.5 defines.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

func circuitStateGauge(s CircuitState) float64 {
	switch s {
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return 0
	}
}

type breaker struct {
	state        CircuitState
	failures     int
	openedAt     time.Time
	trialInFlight bool
}

// CircuitBreakers tracks one breaker per node id.
type CircuitBreakers struct {
	mu        sync.Mutex
	breakers  map[string]*breaker
	threshold int
	timeout   time.Duration
	broker    *events.Broker
}

// NewCircuitBreakers creates a breaker set with the given failure
// threshold and open-state timeout.
func NewCircuitBreakers(threshold int, timeout time.Duration, broker *events.Broker) *CircuitBreakers {
	return &CircuitBreakers{
		breakers:  make(map[string]*breaker),
		threshold: threshold,
		timeout:   timeout,
		broker:    broker,
	}
}

func (cb *CircuitBreakers) get(nodeID string) *breaker {
	b, ok := cb.breakers[nodeID]
	if !ok {
		b = &breaker{state: CircuitClosed}
		cb.breakers[nodeID] = b
	}
	return b
}

// Allows reports whether nodeID may currently be offered as a routing
// candidate, transitioning open->half-open once the timeout has elapsed
// and admitting exactly one concurrent trial while half-open.
func (cb *CircuitBreakers) Allows(nodeID string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.get(nodeID)
	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.openedAt) < cb.timeout {
			return false
		}
		b.state = CircuitHalfOpen
		b.trialInFlight = true
		cb.setGauge(nodeID, b.state)
		return true
	case CircuitHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// RecordResult updates nodeID's breaker after a request completes.
func (cb *CircuitBreakers) RecordResult(nodeID string, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.get(nodeID)
	switch b.state {
	case CircuitHalfOpen:
		b.trialInFlight = false
		if success {
			b.state = CircuitClosed
			b.failures = 0
			cb.publish(events.EventCircuitClosed, nodeID)
		} else {
			b.state = CircuitOpen
			b.openedAt = time.Now()
			cb.publish(events.EventCircuitOpened, nodeID)
		}
	case CircuitOpen:
		// A stray result arriving after timeout reopened nothing; ignore.
	default: // closed
		if success {
			b.failures = 0
		} else {
			b.failures++
			if b.failures >= cb.threshold {
				b.state = CircuitOpen
				b.openedAt = time.Now()
				cb.publish(events.EventCircuitOpened, nodeID)
			}
		}
	}
	cb.setGauge(nodeID, b.state)
}

// Reset forces nodeID's breaker closed (administrative override).
func (cb *CircuitBreakers) Reset(nodeID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b := cb.get(nodeID)
	b.state = CircuitClosed
	b.failures = 0
	b.trialInFlight = false
	cb.setGauge(nodeID, b.state)
}

// State returns nodeID's current breaker state.
func (cb *CircuitBreakers) State(nodeID string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.get(nodeID).state
}

// Failures returns nodeID's current consecutive-failure counter.
func (cb *CircuitBreakers) Failures(nodeID string) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.get(nodeID).failures
}

func (cb *CircuitBreakers) setGauge(nodeID string, state CircuitState) {
	metrics.CircuitState.WithLabelValues(nodeID).Set(circuitStateGauge(state))
}

func (cb *CircuitBreakers) publish(eventType events.EventType, nodeID string) {
	if cb.broker == nil {
		return
	}
	cb.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  "circuit breaker state change",
		Metadata: map[string]string{"node_id": nodeID},
	})
}
