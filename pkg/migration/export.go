package migration

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// Config controls where migration packages are stored and the size/rate
// limits enforced on them.
type Config struct {
	StorageDir         string
	MaxCompressedBytes int64
	DecompressLimits   DecompressLimits
	RateLimitHours     int
	DefaultCompression types.Compression
}

// DefaultConfig returns the 100 MB compressed upload cap and 100x/10GB
// decompression guard named in the migration validation rules.
func DefaultConfig() Config {
	return Config{
		StorageDir:         ".clustercore/migrations",
		MaxCompressedBytes: 100 * 1024 * 1024,
		DecompressLimits:   DefaultDecompressLimits(),
		RateLimitHours:     defaultLimitHours,
		DefaultCompression: types.CompressionGzip,
	}
}

// Exporter runs the export flow: lock, rate limit, snapshot, checksum,
// serialize, compress, optionally encrypt, and finalize the record.
type Exporter struct {
	store   storage.Store
	broker  *events.Broker
	lock    *TenantLock
	limiter *RateLimiter
	audit   *AuditLogger
	cfg     Config
}

// NewExporter builds an Exporter sharing lock/rate-limit state with the
// rest of the migration subsystem.
func NewExporter(store storage.Store, broker *events.Broker, lock *TenantLock, limiter *RateLimiter, audit *AuditLogger, cfg Config) *Exporter {
	return &Exporter{store: store, broker: broker, lock: lock, limiter: limiter, audit: audit, cfg: cfg}
}

// ExportRequest is the input to Export.
type ExportRequest struct {
	Collections    []string
	IncludeIndexes bool
	Compression    types.Compression
	Encrypt        bool
	Description    string
	UserID         string
	TenantID       string
}

func (e *Exporter) publish(eventType events.EventType, message string, meta map[string]string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{Type: eventType, Message: message, Metadata: meta})
}

// Export runs the full export algorithm and returns the finalized record.
func (e *Exporter) Export(req ExportRequest) (*types.MigrationRecord, error) {
	start := time.Now()

	acquired, err := e.lock.Acquire(req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("acquiring migration lock: %w", err)
	}
	if !acquired {
		e.audit.Log(req.UserID, req.TenantID, "", "export", types.AuditBlocked, req.Collections, 0, ErrLockBusy, nil)
		return nil, ErrLockBusy
	}
	defer e.lock.Release(req.TenantID)

	allowed, err := e.limiter.Allow(req.UserID, "export")
	if err != nil {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}
	if !allowed {
		e.audit.Log(req.UserID, req.TenantID, "", "export", types.AuditDenied, req.Collections, 0, ErrRateLimited, nil)
		return nil, ErrRateLimited
	}

	compression := req.Compression
	if compression == "" {
		compression = e.cfg.DefaultCompression
	}

	now := time.Now().UTC()
	rec := &types.MigrationRecord{
		MigrationID: uuid.NewString(),
		Type:        types.MigrationTypeExport,
		Status:      types.MigrationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   req.UserID,
		TenantID:    req.TenantID,
	}
	if err := e.store.CreateMigrationRecord(rec); err != nil {
		return nil, fmt.Errorf("creating migration record: %w", err)
	}
	e.publish(events.EventMigrationStarted, "export started", map[string]string{"migration_id": rec.MigrationID})

	rec.Status = types.MigrationInProgress
	_ = e.store.UpdateMigrationRecord(rec)

	pkg, err := BuildPackage(e.store, req.Collections, req.IncludeIndexes, compression, req.UserID, req.TenantID, req.Description)
	if err != nil {
		return e.fail(rec, req, err)
	}

	serialized, err := SerializePackage(pkg)
	if err != nil {
		return e.fail(rec, req, err)
	}

	compressed, err := compressBytes(serialized, compression)
	if err != nil {
		return e.fail(rec, req, err)
	}

	var encryptionKeyB64 string
	if req.Encrypt {
		key, err := security.GenerateKey()
		if err != nil {
			return e.fail(rec, req, err)
		}
		sm, err := security.NewSecretsManager(key)
		if err != nil {
			return e.fail(rec, req, err)
		}
		compressed, err = sm.Encrypt(compressed)
		if err != nil {
			return e.fail(rec, req, err)
		}
		wrappedKey, err := security.Encrypt(key)
		if err != nil {
			return e.fail(rec, req, err)
		}
		encryptionKeyB64 = base64.StdEncoding.EncodeToString(wrappedKey)
	}

	if err := os.MkdirAll(e.cfg.StorageDir, 0o700); err != nil {
		return e.fail(rec, req, err)
	}
	path := filepath.Join(e.cfg.StorageDir, rec.MigrationID+".pkg")
	if err := os.WriteFile(path, compressed, 0o600); err != nil {
		return e.fail(rec, req, err)
	}

	rec.Status = types.MigrationCompleted
	rec.PackageFilePath = path
	rec.PackageSizeBytes = int64(len(compressed))
	rec.PackageChecksum = pkg.Metadata.Checksum
	completedAt := time.Now().UTC()
	rec.CompletedAt = &completedAt
	rec.UpdatedAt = completedAt
	if encryptionKeyB64 != "" {
		rec.Metadata = map[string]any{"encrypted_key": encryptionKeyB64, "encrypted": true}
	}
	if err := e.store.UpdateMigrationRecord(rec); err != nil {
		return nil, fmt.Errorf("finalizing migration record: %w", err)
	}

	if err := e.limiter.Record(req.UserID, "export"); err != nil {
		log.WithComponent("migration").Warn().Err(err).Msg("failed to record export rate-limit attempt")
	}

	metrics.MigrationsTotal.WithLabelValues("export", "completed").Inc()
	metrics.MigrationBytesTotal.WithLabelValues("export").Add(float64(len(compressed)))
	metrics.MigrationDuration.WithLabelValues("export").Observe(time.Since(start).Seconds())

	e.publish(events.EventMigrationCompleted, "export completed", map[string]string{"migration_id": rec.MigrationID})
	e.audit.Log(req.UserID, req.TenantID, rec.MigrationID, "export", types.AuditSuccess, req.Collections, pkg.Metadata.TotalDocuments, nil, map[string]any{
		"size_bytes": rec.PackageSizeBytes,
	})

	return rec, nil
}

func (e *Exporter) fail(rec *types.MigrationRecord, req ExportRequest, cause error) (*types.MigrationRecord, error) {
	rec.Status = types.MigrationFailed
	rec.ErrorMessage = cause.Error()
	rec.UpdatedAt = time.Now().UTC()
	_ = e.store.UpdateMigrationRecord(rec)

	metrics.MigrationsTotal.WithLabelValues("export", "failed").Inc()
	e.publish(events.EventMigrationFailed, "export failed", map[string]string{"migration_id": rec.MigrationID})
	e.audit.Log(req.UserID, req.TenantID, rec.MigrationID, "export", types.AuditFailure, req.Collections, 0, cause, nil)

	return nil, fmt.Errorf("export failed: %w", cause)
}
