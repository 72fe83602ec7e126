package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry (C1/C2) metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustercore_nodes_total",
			Help: "Total number of nodes by role and status",
		},
		[]string{"role", "status"},
	)

	QuorumHolds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_quorum_holds",
			Help: "Whether the cluster currently holds quorum (1 = yes, 0 = no)",
		},
	)

	AlertsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustercore_alerts_active",
			Help: "Number of active alerts by severity",
		},
		[]string{"severity"},
	)

	// Election (C3) metrics
	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_is_leader",
			Help: "Whether this node currently believes itself to be the master (1 = yes, 0 = no)",
		},
	)

	ElectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_elections_total",
			Help: "Total number of leader elections run",
		},
	)

	// Replication (C4) metrics
	ReplicationLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustercore_replication_lag_seconds",
			Help: "Estimated replication lag per target node in seconds",
		},
		[]string{"target_node"},
	)

	ReplicationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_replication_events_total",
			Help: "Total replication events by final status",
		},
		[]string{"status"},
	)

	ReplicationConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_replication_conflicts_total",
			Help: "Total replication conflicts recorded for manual review",
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clustercore_dispatch_duration_seconds",
			Help:    "Time taken to dispatch one batch of replication events",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Router (C5) metrics
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustercore_circuit_state",
			Help: "Circuit breaker state per node (0=closed, 1=half-open, 2=open)",
		},
		[]string{"node"},
	)

	RoutedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_routed_requests_total",
			Help: "Total requests routed by outcome (local, forwarded, unavailable)",
		},
		[]string{"outcome"},
	)

	RouteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustercore_route_duration_seconds",
			Help:    "Time taken to select and forward a request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	// Migration (C6) metrics
	MigrationBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_migration_bytes_total",
			Help: "Total bytes processed by migration operation type",
		},
		[]string{"op"},
	)

	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_migrations_total",
			Help: "Total migrations by type and final status",
		},
		[]string{"type", "status"},
	)

	MigrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustercore_migration_duration_seconds",
			Help:    "Migration duration in seconds by type",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustercore_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		QuorumHolds,
		AlertsActive,
		IsLeader,
		ElectionsTotal,
		ReplicationLagSeconds,
		ReplicationEventsTotal,
		ReplicationConflictsTotal,
		DispatchDuration,
		CircuitState,
		RoutedRequestsTotal,
		RouteDuration,
		MigrationBytesTotal,
		MigrationsTotal,
		MigrationDuration,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
