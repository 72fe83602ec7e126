package migration

import (
	"bytes"
	"fmt"

	"github.com/sbdlabs/clustercore/pkg/types"
)

// allowedContentTypes are the upload content types accepted for a
// migration package, beyond which an upload is rejected outright.
var allowedContentTypes = map[string]bool{
	"application/octet-stream": true,
	"application/gzip":         true,
	"application/x-gzip":       true,
	"application/x-bzip2":      true,
	"application/json":         true,
}

// ValidateContentType rejects an upload whose declared content type isn't
// one of the package formats the importer understands.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	if !allowedContentTypes[contentType] {
		return fmt.Errorf("%w: unsupported content type %q", ErrValidationFailed, contentType)
	}
	return nil
}

// ValidateUploadSize rejects an upload over the configured compressed-size
// cap before any decompression is attempted.
func ValidateUploadSize(sizeBytes int64, cfg Config) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: empty upload", ErrValidationFailed)
	}
	if cfg.MaxCompressedBytes > 0 && sizeBytes > cfg.MaxCompressedBytes {
		return fmt.Errorf("%w: upload of %d bytes exceeds the %d byte limit", ErrValidationFailed, sizeBytes, cfg.MaxCompressedBytes)
	}
	return nil
}

// DecompressAndParse streams raw to its decompressed form, bounded by
// limits to catch a decompression bomb, then parses the resulting JSON
// into a MigrationPackage.
func DecompressAndParse(raw []byte, compression types.Compression, limits DecompressLimits) (*types.MigrationPackage, error) {
	decompressed, err := decompressBytes(raw, compression, limits)
	if err != nil {
		return nil, err
	}
	pkg, err := ParsePackage(decompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return pkg, nil
}

// ValidatePackageShape checks that a parsed package carries the fields a
// consumer requires before any data is applied from it.
func ValidatePackageShape(pkg *types.MigrationPackage) error {
	if pkg == nil {
		return fmt.Errorf("%w: empty package", ErrValidationFailed)
	}
	m := pkg.Metadata
	if m.Version == "" {
		return fmt.Errorf("%w: missing metadata.version", ErrValidationFailed)
	}
	if m.SystemVersion == "" {
		return fmt.Errorf("%w: missing metadata.system_version", ErrValidationFailed)
	}
	if m.ExportTimestamp.IsZero() {
		return fmt.Errorf("%w: missing metadata.export_timestamp", ErrValidationFailed)
	}
	if m.ExportedBy == "" {
		return fmt.Errorf("%w: missing metadata.exported_by", ErrValidationFailed)
	}
	if m.Checksum == "" {
		return fmt.Errorf("%w: missing metadata.checksum", ErrValidationFailed)
	}
	if len(pkg.Collections) == 0 {
		return fmt.Errorf("%w: package declares no collections", ErrValidationFailed)
	}
	for _, c := range pkg.Collections {
		if c.CollectionName == "" {
			return fmt.Errorf("%w: collection entry missing collection_name", ErrValidationFailed)
		}
		if c.Documents == nil {
			return fmt.Errorf("%w: collection %q missing documents", ErrValidationFailed, c.CollectionName)
		}
	}
	return nil
}

// ValidateChecksum recomputes the package's global checksum from its
// document contents and compares it against the declared metadata value.
func ValidateChecksum(pkg *types.MigrationPackage) error {
	computed, err := RecomputeGlobalChecksum(pkg)
	if err != nil {
		return fmt.Errorf("%w: recomputing checksum: %v", ErrValidationFailed, err)
	}
	if computed != pkg.Metadata.Checksum {
		return fmt.Errorf("%w: checksum mismatch, declared %s computed %s", ErrValidationFailed, pkg.Metadata.Checksum, computed)
	}
	return nil
}

// ValidatePackage runs the full upload-to-parsed-package validation chain
// and returns the parsed package on success. An empty compression is
// taken from raw's leading bytes: gzip or bzip2 magic, otherwise none.
func ValidatePackage(raw []byte, contentType string, compression types.Compression, cfg Config) (*types.MigrationPackage, error) {
	if err := ValidateContentType(contentType); err != nil {
		return nil, err
	}
	if err := ValidateUploadSize(int64(len(raw)), cfg); err != nil {
		return nil, err
	}
	if compression == "" {
		switch {
		case bytes.HasPrefix(raw, []byte{0x1f, 0x8b}):
			compression = types.CompressionGzip
		case bytes.HasPrefix(raw, []byte("BZh")):
			compression = types.CompressionBzip2
		}
	}
	pkg, err := DecompressAndParse(raw, compression, cfg.DecompressLimits)
	if err != nil {
		return nil, err
	}
	if err := ValidatePackageShape(pkg); err != nil {
		return nil, err
	}
	if err := ValidateChecksum(pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}
