package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/sbdlabs/clustercore/pkg/storage"
)

// sortedRecords returns records sorted by id, so the checksum is stable
// regardless of storage iteration order.
func sortedRecords(records []storage.DocumentRecord) []storage.DocumentRecord {
	sorted := make([]storage.DocumentRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

// collectionChecksum hashes each document's id followed by its canonical
// JSON encoding, in id order. encoding/json marshals map keys in sorted
// order, so the result is deterministic across an export/import cycle.
func collectionChecksum(records []storage.DocumentRecord) (string, error) {
	h := sha256.New()
	for _, rec := range sortedRecords(records) {
		h.Write([]byte(rec.ID))
		encoded, err := json.Marshal(rec.Data)
		if err != nil {
			return "", err
		}
		h.Write(encoded)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// globalChecksum hashes the concatenation of per-collection checksums in
// declared order, per spec.
func globalChecksum(perCollection []string) string {
	h := sha256.New()
	for _, c := range perCollection {
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}
