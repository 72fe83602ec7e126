package migration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

const packageFormatVersion = "1"

// idKey is the field every exported document carries its storage key
// under, so import can recover the original document id.
const idKey = "_id"

// buildCollectionExportData snapshots one collection into its export
// form, returning the manifest entry alongside it.
func buildCollectionExportData(store storage.Store, name string, includeIndexes bool) (types.CollectionExportData, types.CollectionManifest, error) {
	records, err := store.ListDocumentRecords(name)
	if err != nil {
		return types.CollectionExportData{}, types.CollectionManifest{}, fmt.Errorf("listing %s: %w", name, err)
	}

	checksum, err := collectionChecksum(records)
	if err != nil {
		return types.CollectionExportData{}, types.CollectionManifest{}, fmt.Errorf("checksumming %s: %w", name, err)
	}

	docs := make([]map[string]any, 0, len(records))
	var sizeBytes int64
	for _, rec := range sortedRecords(records) {
		doc := make(map[string]any, len(rec.Data)+1)
		for k, v := range rec.Data {
			doc[k] = v
		}
		doc[idKey] = rec.ID
		docs = append(docs, doc)
		if encoded, err := json.Marshal(doc); err == nil {
			sizeBytes += int64(len(encoded))
		}
	}

	var indexes []string
	if includeIndexes {
		indexes = []string{} // no secondary-index catalog exists on the generic document store yet
	}

	data := types.CollectionExportData{CollectionName: name, Documents: docs, Indexes: indexes}
	manifest := types.CollectionManifest{
		Name:          name,
		DocumentCount: len(docs),
		SizeBytes:     sizeBytes,
		Checksum:      checksum,
		Indexes:       indexes,
	}
	return data, manifest, nil
}

// BuildPackage assembles a types.MigrationPackage from the named
// collections (or every migratable collection when names is empty).
func BuildPackage(store storage.Store, names []string, includeIndexes bool, compression types.Compression, exportedBy, tenantID, description string) (*types.MigrationPackage, error) {
	if len(names) == 0 {
		all, err := store.ListCollections()
		if err != nil {
			return nil, fmt.Errorf("listing collections: %w", err)
		}
		names = all
	}

	collections := make([]types.CollectionExportData, 0, len(names))
	manifests := make([]types.CollectionManifest, 0, len(names))
	checksums := make([]string, 0, len(names))
	var totalDocs int
	var totalBytes int64

	for _, name := range names {
		data, manifest, err := buildCollectionExportData(store, name, includeIndexes)
		if err != nil {
			return nil, err
		}
		collections = append(collections, data)
		manifests = append(manifests, manifest)
		checksums = append(checksums, manifest.Checksum)
		totalDocs += manifest.DocumentCount
		totalBytes += manifest.SizeBytes
	}

	meta := types.PackageMetadata{
		Version:         packageFormatVersion,
		SystemVersion:   packageFormatVersion,
		ExportTimestamp: time.Now().UTC(),
		ExportedBy:      exportedBy,
		TenantID:        tenantID,
		Collections:     manifests,
		TotalDocuments:  totalDocs,
		TotalSizeBytes:  totalBytes,
		Checksum:        globalChecksum(checksums),
		Compression:     compression,
		Description:     description,
	}

	return &types.MigrationPackage{Metadata: meta, Collections: collections}, nil
}

// SerializePackage encodes pkg to its canonical JSON form.
func SerializePackage(pkg *types.MigrationPackage) ([]byte, error) {
	return json.Marshal(pkg)
}

// ParsePackage decodes a serialized package and recomputes its global
// checksum for comparison against the declared one.
func ParsePackage(data []byte) (*types.MigrationPackage, error) {
	var pkg types.MigrationPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package JSON: %w", err)
	}
	return &pkg, nil
}

// RecomputeGlobalChecksum recomputes the global checksum from a parsed
// package's per-collection documents, for validation against the
// declared metadata checksum.
func RecomputeGlobalChecksum(pkg *types.MigrationPackage) (string, error) {
	checksums := make([]string, 0, len(pkg.Collections))
	for _, c := range pkg.Collections {
		records := make([]storage.DocumentRecord, 0, len(c.Documents))
		for _, doc := range c.Documents {
			id, _ := doc[idKey].(string)
			data := make(map[string]any, len(doc))
			for k, v := range doc {
				if k == idKey {
					continue
				}
				data[k] = v
			}
			records = append(records, storage.DocumentRecord{ID: id, Data: data})
		}
		sum, err := collectionChecksum(records)
		if err != nil {
			return "", err
		}
		checksums = append(checksums, sum)
	}
	return globalChecksum(checksums), nil
}
