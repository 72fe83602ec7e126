package migration

import (
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// AuditLogger appends structured records to the migration audit trail
// and mirrors them to the process logger at a severity matching result.
type AuditLogger struct {
	store storage.Store
}

// NewAuditLogger creates an AuditLogger backed by store.
func NewAuditLogger(store storage.Store) *AuditLogger {
	return &AuditLogger{store: store}
}

// Log records one audit entry. details and err may be nil.
func (a *AuditLogger) Log(userID, tenantID, migrationID, action string, result types.AuditResult, collections []string, documentCount int, err error, details map[string]any) {
	rec := &types.MigrationAuditRecord{
		ID:                  uuid.NewString(),
		Timestamp:           time.Now().UTC(),
		EventType:           action,
		UserID:              userID,
		TenantID:            tenantID,
		MigrationID:         migrationID,
		Action:              action,
		Result:              result,
		CollectionsAccessed: collections,
		DocumentCount:       documentCount,
		Details:             details,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}

	if appendErr := a.store.AppendAuditRecord(rec); appendErr != nil {
		log.WithComponent("migration").Error().Err(appendErr).Msg("failed to append audit record")
	}

	entry := log.WithComponent("migration").With().
		Str("action", action).
		Str("result", string(result)).
		Str("migration_id", migrationID).
		Logger()

	switch result {
	case types.AuditFailure:
		entry.Error().Err(err).Msg("migration audit event")
	case types.AuditDenied, types.AuditBlocked:
		entry.Warn().Msg("migration audit event")
	default:
		entry.Info().Msg("migration audit event")
	}
}
