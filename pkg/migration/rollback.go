package migration

import (
	"fmt"
	"os"
	"time"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Rollbacker restores a collection set to the snapshot taken just before
// an import that requested create_rollback.
type Rollbacker struct {
	store  storage.Store
	broker *events.Broker
	audit  *AuditLogger
	cfg    Config
}

// NewRollbacker builds a Rollbacker sharing storage and audit state with
// the rest of the migration subsystem.
func NewRollbacker(store storage.Store, broker *events.Broker, audit *AuditLogger, cfg Config) *Rollbacker {
	return &Rollbacker{store: store, broker: broker, audit: audit, cfg: cfg}
}

func (r *Rollbacker) publish(eventType events.EventType, message string, meta map[string]string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{Type: eventType, Message: message, Metadata: meta})
}

// Rollback restores the collections touched by migrationID to the state
// captured in its rollback snapshot. It requires explicit confirmation
// since it overwrites whatever an import subsequently wrote.
func (r *Rollbacker) Rollback(migrationID string, confirm bool, userID string) error {
	if !confirm {
		return fmt.Errorf("%w: rollback requires explicit confirmation", ErrValidationFailed)
	}

	rec, err := r.store.GetMigrationRecord(migrationID)
	if err != nil {
		return fmt.Errorf("loading migration record: %w", err)
	}
	if rec == nil || !rec.RollbackAvailable || rec.RollbackDataPath == "" {
		return ErrRollbackUnavailable
	}

	raw, err := os.ReadFile(rec.RollbackDataPath)
	if err != nil {
		return fmt.Errorf("reading rollback snapshot: %w", err)
	}
	decompressed, err := decompressBytes(raw, types.CompressionGzip, r.cfg.DecompressLimits)
	if err != nil {
		return fmt.Errorf("decompressing rollback snapshot: %w", err)
	}
	snapshot, err := ParsePackage(decompressed)
	if err != nil {
		return fmt.Errorf("parsing rollback snapshot: %w", err)
	}

	var restored int
	for _, coll := range snapshot.Collections {
		current, err := r.store.ListDocumentRecords(coll.CollectionName)
		if err != nil {
			return fmt.Errorf("listing current %s: %w", coll.CollectionName, err)
		}

		snapshotIDs := make(map[string]bool, len(coll.Documents))
		for _, doc := range coll.Documents {
			id, _ := doc[idKey].(string)
			snapshotIDs[id] = true

			data := make(map[string]any, len(doc))
			for k, v := range doc {
				if k == idKey {
					continue
				}
				data[k] = v
			}
			if err := r.store.PutDocument(coll.CollectionName, id, data); err != nil {
				return fmt.Errorf("restoring %s/%s: %w", coll.CollectionName, id, err)
			}
			restored++
		}

		// Remove anything the import inserted that wasn't in the original snapshot.
		for _, rec := range current {
			if !snapshotIDs[rec.ID] {
				if err := r.store.DeleteDocument(coll.CollectionName, rec.ID); err != nil {
					return fmt.Errorf("removing %s/%s: %w", coll.CollectionName, rec.ID, err)
				}
			}
		}
	}

	rec.Status = types.MigrationRolledBack
	rec.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateMigrationRecord(rec); err != nil {
		return fmt.Errorf("updating migration record: %w", err)
	}

	metrics.MigrationsTotal.WithLabelValues(string(rec.Type), "rolled_back").Inc()
	r.publish(events.EventMigrationCompleted, "rollback completed", map[string]string{"migration_id": migrationID})
	r.audit.Log(userID, rec.TenantID, migrationID, "rollback", types.AuditSuccess, nil, restored, nil, nil)

	return nil
}
