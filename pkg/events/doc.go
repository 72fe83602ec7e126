/*
Package events provides an in-memory event broker for clustercore's
pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
cluster events — node lifecycle, leader elections, split-brain detection,
alerts, replication failures, migrations — to interested subscribers. It
supports non-blocking, best-effort delivery over buffered channels,
decoupling the components that detect a condition from whoever acts on it
(metrics, audit logging, a future notification channel).

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│  Publisher → Event Channel (buffer: 100)                  │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                    │
	└────────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - ID: Unique event identifier
  - Type: Event type (node.registered, leader.elected, etc.)
  - Timestamp: When event occurred
  - Message: Human-readable description
  - Metadata: Key-value pairs for additional context

# Event Types Catalog

Node lifecycle: node.registered, node.removed, node.promoted,
node.demoted, node.unhealthy, node.healthy.

Election & quorum: leader.elected, split_brain.detected,
split_brain.resolved, quorum.lost, quorum.restored.

Alerts: alert.raised, alert.resolved.

Replication & routing: replication.failed, circuit.opened, circuit.closed.

Migration: migration.started, migration.completed, migration.failed,
transfer.progress.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s: %s\n", event.Timestamp.Format("15:04:05"), event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventNodePromoted,
		Message: "node promoted to master",
		Metadata: map[string]string{"node_id": "n-1"},
	})

# Design Patterns

Non-blocking publish, fan-out to independent subscriber channels, full
buffers skip rather than block. Best-effort delivery — suitable for
metrics, audit logging, and CLI streaming, not for anything that needs a
durable or ordered log (that's what replication_log and cluster_events in
pkg/storage are for).

# Limitations

In-memory only, no persistence or replay, no guaranteed delivery, all
events broadcast to every subscriber (filter client-side by Type).

# See Also

  - pkg/quorum for alert and split-brain event producers
  - pkg/election for leader.elected
  - pkg/replication for replication.failed
  - pkg/router for circuit.opened/closed
  - pkg/migration for migration.* and transfer.progress
*/
package events
