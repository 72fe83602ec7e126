package metrics

import (
	"time"

	"github.com/sbdlabs/clustercore/pkg/types"
)

// Source is the narrow view of a running cluster Runtime the Collector
// needs. Defined here (rather than importing pkg/cluster) so pkg/metrics
// has no dependency on the component it instruments; pkg/cluster.Runtime
// satisfies this interface implicitly.
type Source interface {
	ListNodes() ([]*types.Node, error)
	ActiveAlerts() ([]*types.ClusterAlert, error)
	IsLeader() bool
}

// Collector periodically samples a Source and updates the cluster gauges.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a metrics collector bound to source.
func NewCollector(source Source) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins collecting metrics on a 15-second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectAlertMetrics()
	c.collectLeaderMetric()
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.source.ListNodes()
	if err != nil {
		return
	}

	counts := make(map[string]map[string]int)
	for _, node := range nodes {
		role, status := string(node.Role), string(node.Status)
		if counts[role] == nil {
			counts[role] = make(map[string]int)
		}
		counts[role][status]++
	}

	for role, statuses := range counts {
		for status, count := range statuses {
			NodesTotal.WithLabelValues(role, status).Set(float64(count))
		}
	}
}

func (c *Collector) collectAlertMetrics() {
	alerts, err := c.source.ActiveAlerts()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, a := range alerts {
		counts[string(a.Severity)]++
	}
	for _, sev := range []string{"info", "warning", "error", "critical"} {
		AlertsActive.WithLabelValues(sev).Set(float64(counts[sev]))
	}
}

func (c *Collector) collectLeaderMetric() {
	if c.source.IsLeader() {
		IsLeader.Set(1)
	} else {
		IsLeader.Set(0)
	}
}
