package cluster

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/sbdlabs/clustercore/pkg/clustererr"
	"github.com/sbdlabs/clustercore/pkg/migration"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// MigrationHandler serves the tenant-owner-authenticated HTTP surface
// named in spec §6 for the export/import/rollback pipeline. Auth here
// is deliberately left to an outer middleware the embedding application
// installs (spec §1 places end-user auth/JWT issuance out of scope);
// this handler reads UserID/TenantID from the headers that middleware
// is expected to set.
type MigrationHandler struct {
	rt  *Runtime
	mux *http.ServeMux
}

// NewMigrationHandler builds the migration HTTP surface bound to rt.
func NewMigrationHandler(rt *Runtime) *MigrationHandler {
	h := &MigrationHandler{rt: rt, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /migration/export", h.export)
	h.mux.HandleFunc("GET /migration/export/{id}/download", h.download)
	h.mux.HandleFunc("POST /migration/upload", h.upload)
	h.mux.HandleFunc("POST /migration/import", h.doImport)
	h.mux.HandleFunc("POST /migration/import/validate", h.validateOnly)
	h.mux.HandleFunc("POST /migration/import/{id}/rollback", h.rollback)
	h.mux.HandleFunc("GET /migration/history", h.history)
	h.mux.HandleFunc("DELETE /migration/{id}", h.delete)
	h.mux.HandleFunc("GET /migration/collections", h.collections)
	h.mux.HandleFunc("GET /migration/{id}/status", h.status)
	h.mux.HandleFunc("GET /migration/health", h.health)
	return h
}

func (h *MigrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func callerID(r *http.Request) (userID, tenantID string) {
	return r.Header.Get("X-User-ID"), r.Header.Get("X-Tenant-ID")
}

type exportRequest struct {
	Collections    []string `json:"collections"`
	IncludeIndexes bool     `json:"include_indexes"`
	Compression    string   `json:"compression"`
	Encrypt        bool     `json:"encrypt"`
	Description    string   `json:"description"`
}

func (h *MigrationHandler) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "malformed export request", err))
		return
	}
	userID, tenantID := callerID(r)
	rec, err := h.rt.Exporter.Export(migration.ExportRequest{
		Collections:    req.Collections,
		IncludeIndexes: req.IncludeIndexes,
		Compression:    types.Compression(req.Compression),
		Encrypt:        req.Encrypt,
		Description:    req.Description,
		UserID:         userID,
		TenantID:       tenantID,
	})
	if err != nil {
		writeError(w, mapMigrationErr(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *MigrationHandler) download(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rt.store.GetMigrationRecord(r.PathValue("id"))
	if err != nil || rec == nil {
		writeError(w, clustererr.New(clustererr.KindValidation, "migration not found"))
		return
	}
	f, err := os.Open(rec.PackageFilePath)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "package file unavailable", err))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, f)
}

func (h *MigrationHandler) upload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, h.rt.cfg.MigrationMaxCompressedBytes+1))
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "reading upload", err))
		return
	}
	if err := migration.ValidateContentType(r.Header.Get("Content-Type")); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "disallowed content type", err))
		return
	}
	if err := migration.ValidateUploadSize(int64(len(raw)), h.rt.cfg.migrationConfig()); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "upload too large", err))
		return
	}
	id, err := h.rt.stagePackage(raw)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "staging upload failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"migration_package_id": id})
}

type importRequest struct {
	MigrationPackageID string   `json:"migration_package_id"`
	Collections        []string `json:"collections"`
	ConflictResolution string   `json:"conflict_resolution"`
	CreateRollback     bool     `json:"create_rollback"`
	ValidateOnly       bool     `json:"validate_only"`
}

func (h *MigrationHandler) doImport(w http.ResponseWriter, r *http.Request) {
	h.runImport(w, r, false)
}

func (h *MigrationHandler) validateOnly(w http.ResponseWriter, r *http.Request) {
	h.runImport(w, r, true)
}

func (h *MigrationHandler) runImport(w http.ResponseWriter, r *http.Request, forceValidateOnly bool) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "malformed import request", err))
		return
	}
	raw, contentType, err := h.rt.loadStagedPackage(req.MigrationPackageID)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "package not found", err))
		return
	}
	userID, tenantID := callerID(r)
	rec, err := h.rt.Importer.Import(migration.ImportRequest{
		RawPackage:         raw,
		ContentType:        contentType,
		Collections:        req.Collections,
		ConflictResolution: migration.ConflictResolution(req.ConflictResolution),
		CreateRollback:     req.CreateRollback,
		ValidateOnly:       req.ValidateOnly || forceValidateOnly,
		UserID:             userID,
		TenantID:           tenantID,
	})
	if err != nil {
		writeError(w, mapMigrationErr(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *MigrationHandler) rollback(w http.ResponseWriter, r *http.Request) {
	userID, _ := callerID(r)
	confirm := r.URL.Query().Get("confirm") == "true"
	if err := h.rt.Rollback.Rollback(r.PathValue("id"), confirm, userID); err != nil {
		writeError(w, mapMigrationErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rolled_back"})
}

func (h *MigrationHandler) history(w http.ResponseWriter, r *http.Request) {
	userID, _ := callerID(r)
	recs, err := h.rt.store.ListMigrationRecords(userID)
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "history unavailable", err))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	if offset < 0 || offset > len(recs) {
		offset = len(recs)
	}
	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}
	writeJSON(w, http.StatusOK, recs[offset:end])
}

func (h *MigrationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.rt.store.GetMigrationRecord(id)
	if err == nil && rec != nil {
		if rec.PackageFilePath != "" {
			_ = os.Remove(rec.PackageFilePath)
		}
		if rec.RollbackDataPath != "" {
			_ = os.Remove(rec.RollbackDataPath)
		}
	}
	if err := h.rt.store.DeleteMigrationRecord(id); err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindValidation, "delete failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *MigrationHandler) collections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.rt.store.ListCollections()
	if err != nil {
		writeError(w, clustererr.Wrap(clustererr.KindFatal, "listing collections failed", err))
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (h *MigrationHandler) status(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rt.store.GetMigrationRecord(r.PathValue("id"))
	if err != nil || rec == nil {
		writeError(w, clustererr.New(clustererr.KindValidation, "migration not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *MigrationHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mapMigrationErr maps the migration package's sentinel errors to the
// structured kind the HTTP layer reports, per spec §7: lock contention
// and rate limiting are concurrency failures (409/429); validation
// failures (checksum, content type, decompression bomb) are 400.
func mapMigrationErr(err error) *clustererr.Error {
	switch {
	case errors.Is(err, migration.ErrLockBusy):
		return clustererr.Wrap(clustererr.KindConcurrency, "migration already in progress for this tenant", err)
	case errors.Is(err, migration.ErrRateLimited):
		return clustererr.Wrap(clustererr.KindConcurrency, "rate limit exceeded", err).WithRetryAfter(0)
	case errors.Is(err, migration.ErrValidationFailed), errors.Is(err, migration.ErrDecompressionBomb), errors.Is(err, migration.ErrConflict):
		return clustererr.Wrap(clustererr.KindValidation, "package validation failed", err)
	case errors.Is(err, migration.ErrRollbackUnavailable):
		return clustererr.Wrap(clustererr.KindValidation, "no rollback snapshot available", err)
	default:
		return clustererr.Wrap(clustererr.KindFatal, "migration operation failed", err)
	}
}
