package quorum

import (
	"fmt"
	"sync"
	"time"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Alert rule type names, used as ClusterAlert.Type and as the key half of
// the one-active-alert-per-(type,node) dedup rule.
const (
	AlertNodeDown           = "node_down"
	AlertNodeDegraded       = "node_degraded"
	AlertHighReplicationLag = "high_replication_lag"
	AlertResourceHigh       = "resource_high"
	AlertSplitBrain         = "split_brain"
	AlertNoQuorum           = "no_quorum"
	AlertLeaderChange       = "leader_change"
	AlertSecurityEvent      = "security_event"
)

// ClusterScopeNodeID is used as the NodeID half of an alert's dedup key
// for alerts that describe the cluster as a whole rather than one node.
const ClusterScopeNodeID = "cluster"

// Rule configures one monitored condition: its default severity, an
// optional numeric threshold, and whether it's currently enabled. Rules
// are editable at runtime via AlertRules.SetThreshold/SetEnabled.
type Rule struct {
	Type            string
	DefaultSeverity types.AlertSeverity
	Threshold       float64
	Enabled         bool
}

// AlertRules is the runtime-editable table of monitored conditions.
type AlertRules struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// DefaultAlertRules returns the rules table with the thresholds spec.md
// names: high_replication_lag and resource_high are expressed as seconds
// and percent respectively.
func DefaultAlertRules() *AlertRules {
	return &AlertRules{
		rules: map[string]*Rule{
			AlertNodeDown:           {Type: AlertNodeDown, DefaultSeverity: types.SeverityCritical, Enabled: true},
			AlertNodeDegraded:       {Type: AlertNodeDegraded, DefaultSeverity: types.SeverityWarning, Enabled: true},
			AlertHighReplicationLag: {Type: AlertHighReplicationLag, DefaultSeverity: types.SeverityWarning, Threshold: 30, Enabled: true},
			AlertResourceHigh:       {Type: AlertResourceHigh, DefaultSeverity: types.SeverityWarning, Threshold: 90, Enabled: true},
			AlertSplitBrain:         {Type: AlertSplitBrain, DefaultSeverity: types.SeverityCritical, Enabled: true},
			AlertNoQuorum:           {Type: AlertNoQuorum, DefaultSeverity: types.SeverityCritical, Enabled: true},
			AlertLeaderChange:       {Type: AlertLeaderChange, DefaultSeverity: types.SeverityInfo, Enabled: true},
			AlertSecurityEvent:      {Type: AlertSecurityEvent, DefaultSeverity: types.SeverityError, Enabled: true},
		},
	}
}

// Get returns a copy of the named rule, or nil if unknown.
func (ar *AlertRules) Get(alertType string) *Rule {
	ar.mu.RLock()
	defer ar.mu.RUnlock()
	r, ok := ar.rules[alertType]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// SetThreshold edits a rule's numeric threshold at runtime.
func (ar *AlertRules) SetThreshold(alertType string, threshold float64) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	if r, ok := ar.rules[alertType]; ok {
		r.Threshold = threshold
	}
}

// SetEnabled edits a rule's enabled flag at runtime.
func (ar *AlertRules) SetEnabled(alertType string, enabled bool) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	if r, ok := ar.rules[alertType]; ok {
		r.Enabled = enabled
	}
}

// AlertManager raises and resolves ClusterAlert records, enforcing exactly
// one active alert per (type, node_id-or-cluster).
type AlertManager struct {
	store  storage.Store
	broker *events.Broker
	rules  *AlertRules
}

// NewAlertManager creates an AlertManager bound to store, using rules for
// severity defaults and enabled/threshold checks.
func NewAlertManager(store storage.Store, broker *events.Broker, rules *AlertRules) *AlertManager {
	return &AlertManager{store: store, broker: broker, rules: rules}
}

func alertID(alertType, scopeID string) string {
	return fmt.Sprintf("%s:%s", alertType, scopeID)
}

// Raise creates or no-ops an alert for (alertType, scopeID). Re-raising an
// already-active alert is a no-op. severityOverride, if non-empty,
// replaces the rule's default severity for this occurrence.
func (am *AlertManager) Raise(alertType, scopeID, title, message string, severityOverride types.AlertSeverity) error {
	rule := am.rules.Get(alertType)
	if rule != nil && !rule.Enabled {
		return nil
	}

	id := alertID(alertType, scopeID)
	existing, err := am.store.GetAlert(id)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Resolved {
		return nil
	}

	severity := types.SeverityWarning
	if rule != nil {
		severity = rule.DefaultSeverity
	}
	if severityOverride != "" {
		severity = severityOverride
	}

	alert := &types.ClusterAlert{
		ID:        id,
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		NodeID:    scopeID,
		Timestamp: time.Now(),
		Resolved:  false,
	}
	if scopeID == ClusterScopeNodeID {
		alert.NodeID = ""
	}

	if err := am.store.UpsertAlert(alert); err != nil {
		return err
	}

	log.WithComponent("quorum").Warn().Str("alert_type", alertType).Str("scope", scopeID).Msg(message)
	if am.broker != nil {
		am.broker.Publish(&events.Event{
			Type:     events.EventAlertRaised,
			Message:  message,
			Metadata: map[string]string{"alert_type": alertType, "scope": scopeID},
		})
	}
	return nil
}

// Resolve marks the alert for (alertType, scopeID) resolved, if active.
func (am *AlertManager) Resolve(alertType, scopeID string) error {
	id := alertID(alertType, scopeID)
	existing, err := am.store.GetAlert(id)
	if err != nil {
		return err
	}
	if existing == nil || existing.Resolved {
		return nil
	}

	now := time.Now()
	existing.Resolved = true
	existing.ResolvedAt = &now
	if err := am.store.UpsertAlert(existing); err != nil {
		return err
	}

	if am.broker != nil {
		am.broker.Publish(&events.Event{
			Type:     events.EventAlertResolved,
			Message:  existing.Message,
			Metadata: map[string]string{"alert_type": alertType, "scope": scopeID},
		})
	}
	return nil
}

// ActiveAlerts returns all currently unresolved alerts.
func (am *AlertManager) ActiveAlerts() ([]*types.ClusterAlert, error) {
	return am.store.ListActiveAlerts()
}
