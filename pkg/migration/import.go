package migration

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// ConflictResolution controls how an import handles a document id that
// already exists in the target collection.
type ConflictResolution string

const (
	ConflictSkip      ConflictResolution = "skip"
	ConflictOverwrite ConflictResolution = "overwrite"
	ConflictFail      ConflictResolution = "fail"
)

// Importer runs the import flow: lock, rate limit, validate, optionally
// snapshot for rollback, apply documents per the conflict policy.
type Importer struct {
	store   storage.Store
	broker  *events.Broker
	lock    *TenantLock
	limiter *RateLimiter
	audit   *AuditLogger
	cfg     Config
}

// NewImporter builds an Importer sharing lock/rate-limit state with the
// rest of the migration subsystem.
func NewImporter(store storage.Store, broker *events.Broker, lock *TenantLock, limiter *RateLimiter, audit *AuditLogger, cfg Config) *Importer {
	return &Importer{store: store, broker: broker, lock: lock, limiter: limiter, audit: audit, cfg: cfg}
}

// ImportRequest is the input to Import.
type ImportRequest struct {
	PackageFilePath    string
	RawPackage         []byte
	ContentType        string
	Compression        types.Compression
	EncryptedKey       string // base64, as stored in the exporting MigrationRecord's Metadata
	Collections        []string
	ConflictResolution ConflictResolution
	CreateRollback     bool
	ValidateOnly       bool
	UserID             string
	TenantID           string
}

func (i *Importer) publish(eventType events.EventType, message string, meta map[string]string) {
	if i.broker == nil {
		return
	}
	i.broker.Publish(&events.Event{Type: eventType, Message: message, Metadata: meta})
}

func (i *Importer) loadRaw(req ImportRequest) ([]byte, error) {
	if req.RawPackage != nil {
		return req.RawPackage, nil
	}
	if req.PackageFilePath == "" {
		return nil, fmt.Errorf("%w: no package payload or file path given", ErrValidationFailed)
	}
	return os.ReadFile(req.PackageFilePath)
}

func (i *Importer) decryptIfNeeded(raw []byte, req ImportRequest) ([]byte, error) {
	if req.EncryptedKey == "" {
		return raw, nil
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(req.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encrypted package key: %w", err)
	}
	key, err := security.Decrypt(wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrapping package key: %w", err)
	}
	sm, err := security.NewSecretsManager(key)
	if err != nil {
		return nil, fmt.Errorf("building secrets manager for package key: %w", err)
	}
	return sm.Decrypt(raw)
}

// Import runs the full import algorithm and returns the finalized record.
func (i *Importer) Import(req ImportRequest) (*types.MigrationRecord, error) {
	start := time.Now()

	raw, err := i.loadRaw(req)
	if err != nil {
		return nil, fmt.Errorf("reading package: %w", err)
	}

	raw, err = i.decryptIfNeeded(raw, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting package: %w", err)
	}

	pkg, err := ValidatePackage(raw, req.ContentType, req.Compression, i.cfg)
	if err != nil {
		return nil, err
	}

	if req.ValidateOnly {
		return nil, nil
	}

	acquired, err := i.lock.Acquire(req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("acquiring migration lock: %w", err)
	}
	if !acquired {
		i.audit.Log(req.UserID, req.TenantID, "", "import", types.AuditBlocked, req.Collections, 0, ErrLockBusy, nil)
		return nil, ErrLockBusy
	}
	defer i.lock.Release(req.TenantID)

	allowed, err := i.limiter.Allow(req.UserID, "import")
	if err != nil {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}
	if !allowed {
		i.audit.Log(req.UserID, req.TenantID, "", "import", types.AuditDenied, req.Collections, 0, ErrRateLimited, nil)
		return nil, ErrRateLimited
	}

	now := time.Now().UTC()
	rec := &types.MigrationRecord{
		MigrationID: uuid.NewString(),
		Type:        types.MigrationTypeImport,
		Status:      types.MigrationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   req.UserID,
		TenantID:    req.TenantID,
	}
	if err := i.store.CreateMigrationRecord(rec); err != nil {
		return nil, fmt.Errorf("creating migration record: %w", err)
	}
	i.publish(events.EventMigrationStarted, "import started", map[string]string{"migration_id": rec.MigrationID})

	rec.Status = types.MigrationInProgress
	_ = i.store.UpdateMigrationRecord(rec)

	targets := req.Collections
	if len(targets) == 0 {
		for _, c := range pkg.Collections {
			targets = append(targets, c.CollectionName)
		}
	}
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	var rollbackPath string
	if req.CreateRollback {
		path, err := i.snapshotForRollback(rec.MigrationID, targets)
		if err != nil {
			return i.fail(rec, req, err)
		}
		rollbackPath = path
	}

	var totalDocs int
	resolution := req.ConflictResolution
	if resolution == "" {
		resolution = ConflictSkip
	}

	for _, coll := range pkg.Collections {
		if !targetSet[coll.CollectionName] {
			continue
		}
		applied, err := i.applyCollection(coll, resolution)
		if err != nil {
			return i.fail(rec, req, err)
		}
		totalDocs += applied
	}

	rec.Status = types.MigrationCompleted
	rec.RollbackAvailable = rollbackPath != ""
	rec.RollbackDataPath = rollbackPath
	completedAt := time.Now().UTC()
	rec.CompletedAt = &completedAt
	rec.UpdatedAt = completedAt
	if err := i.store.UpdateMigrationRecord(rec); err != nil {
		return nil, fmt.Errorf("finalizing migration record: %w", err)
	}

	if err := i.limiter.Record(req.UserID, "import"); err != nil {
		log.WithComponent("migration").Warn().Err(err).Msg("failed to record import rate-limit attempt")
	}

	metrics.MigrationsTotal.WithLabelValues("import", "completed").Inc()
	metrics.MigrationBytesTotal.WithLabelValues("import").Add(float64(len(raw)))
	metrics.MigrationDuration.WithLabelValues("import").Observe(time.Since(start).Seconds())

	i.publish(events.EventMigrationCompleted, "import completed", map[string]string{"migration_id": rec.MigrationID})
	i.audit.Log(req.UserID, req.TenantID, rec.MigrationID, "import", types.AuditSuccess, targets, totalDocs, nil, nil)

	return rec, nil
}

// applyCollection writes coll's documents into the store honoring the
// conflict resolution policy, returning the number of documents applied.
func (i *Importer) applyCollection(coll types.CollectionExportData, resolution ConflictResolution) (int, error) {
	var applied int
	for _, doc := range coll.Documents {
		id, _ := doc[idKey].(string)
		data := make(map[string]any, len(doc))
		for k, v := range doc {
			if k == idKey {
				continue
			}
			data[k] = v
		}

		_, exists, err := i.store.GetDocument(coll.CollectionName, id)
		if err != nil {
			return applied, fmt.Errorf("checking %s/%s: %w", coll.CollectionName, id, err)
		}
		if exists {
			switch resolution {
			case ConflictSkip:
				continue
			case ConflictFail:
				return applied, fmt.Errorf("%w: %s/%s", ErrConflict, coll.CollectionName, id)
			}
		}

		if err := i.store.PutDocument(coll.CollectionName, id, data); err != nil {
			return applied, fmt.Errorf("writing %s/%s: %w", coll.CollectionName, id, err)
		}
		applied++
	}
	return applied, nil
}

// snapshotForRollback captures the current contents of the target
// collections before an import overwrites them.
func (i *Importer) snapshotForRollback(migrationID string, collections []string) (string, error) {
	snapshot, err := BuildPackage(i.store, collections, false, types.CompressionGzip, "rollback", "", migrationID+" pre-import snapshot")
	if err != nil {
		return "", fmt.Errorf("snapshotting for rollback: %w", err)
	}
	serialized, err := SerializePackage(snapshot)
	if err != nil {
		return "", fmt.Errorf("serializing rollback snapshot: %w", err)
	}
	compressed, err := compressBytes(serialized, types.CompressionGzip)
	if err != nil {
		return "", fmt.Errorf("compressing rollback snapshot: %w", err)
	}
	if err := os.MkdirAll(i.cfg.StorageDir, 0o700); err != nil {
		return "", err
	}
	path := i.cfg.StorageDir + "/" + migrationID + ".rollback"
	if err := os.WriteFile(path, compressed, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (i *Importer) fail(rec *types.MigrationRecord, req ImportRequest, cause error) (*types.MigrationRecord, error) {
	rec.Status = types.MigrationFailed
	rec.ErrorMessage = cause.Error()
	rec.UpdatedAt = time.Now().UTC()
	_ = i.store.UpdateMigrationRecord(rec)

	metrics.MigrationsTotal.WithLabelValues("import", "failed").Inc()
	i.publish(events.EventMigrationFailed, "import failed", map[string]string{"migration_id": rec.MigrationID})
	i.audit.Log(req.UserID, req.TenantID, rec.MigrationID, "import", types.AuditFailure, req.Collections, 0, cause, nil)

	return nil, fmt.Errorf("import failed: %w", cause)
}
