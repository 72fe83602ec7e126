package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// stagePackage and loadStagedPackage implement the upload->import
// indirection spec §6 describes ("POST /migration/upload, returns a
// migration_package_id" then "POST /migration/import" references it by
// that id). Staged uploads live under <storage-dir>/uploads/<id> as raw
// bytes only; they are not MigrationRecords themselves, only bytes
// waiting to be validated by Importer.Import. The upload's Content-Type
// is not stored: loadStagedPackage reports every staged package as
// application/gzip.
func (rt *Runtime) stagePackage(raw []byte) (string, error) {
	dir := filepath.Join(rt.cfg.MigrationStorageDir, "uploads")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(filepath.Join(dir, id), raw, 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func (rt *Runtime) loadStagedPackage(id string) ([]byte, string, error) {
	if id == "" {
		return nil, "", fmt.Errorf("missing migration_package_id")
	}
	dir := filepath.Join(rt.cfg.MigrationStorageDir, "uploads")
	raw, err := os.ReadFile(filepath.Join(dir, id))
	if err != nil {
		return nil, "", err
	}
	return raw, "application/gzip", nil
}
