package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/types"
)

func TestExport_HappyPath(t *testing.T) {
	h := newTestHarness(t)
	seedCollection(t, h.store, "widgets", map[string]map[string]any{
		"w1": {"name": "left widget", "count": float64(3)},
		"w2": {"name": "right widget", "count": float64(5)},
	})

	exporter := NewExporter(h.store, h.broker, h.lock, h.limiter, h.audit, h.cfg)
	rec, err := exporter.Export(ExportRequest{
		Collections: []string{"widgets"},
		Compression: types.CompressionGzip,
		UserID:      "alice",
		TenantID:    "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, types.MigrationCompleted, rec.Status)
	assert.NotEmpty(t, rec.PackageFilePath)
	assert.Greater(t, rec.PackageSizeBytes, int64(0))
	assert.NotEmpty(t, rec.PackageChecksum)
}

func TestExport_RateLimitedOnSecondAttempt(t *testing.T) {
	h := newTestHarness(t)
	seedCollection(t, h.store, "widgets", map[string]map[string]any{"w1": {"name": "a"}})

	exporter := NewExporter(h.store, h.broker, h.lock, h.limiter, h.audit, h.cfg)
	req := ExportRequest{Collections: []string{"widgets"}, UserID: "alice", TenantID: "acme"}

	_, err := exporter.Export(req)
	require.NoError(t, err)

	_, err = exporter.Export(req)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestExport_LockBusyBlocksConcurrentExport(t *testing.T) {
	h := newTestHarness(t)
	seedCollection(t, h.store, "widgets", map[string]map[string]any{"w1": {"name": "a"}})

	acquired, err := h.lock.Acquire("acme")
	require.NoError(t, err)
	require.True(t, acquired)

	exporter := NewExporter(h.store, h.broker, h.lock, h.limiter, h.audit, h.cfg)
	_, err = exporter.Export(ExportRequest{Collections: []string{"widgets"}, UserID: "alice", TenantID: "acme"})
	assert.ErrorIs(t, err, ErrLockBusy)
}

func TestExport_EncryptedRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	seedCollection(t, h.store, "widgets", map[string]map[string]any{"w1": {"name": "a"}})

	exporter := NewExporter(h.store, h.broker, h.lock, h.limiter, h.audit, h.cfg)
	rec, err := exporter.Export(ExportRequest{
		Collections: []string{"widgets"},
		Encrypt:     true,
		UserID:      "alice",
		TenantID:    "acme",
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, true, rec.Metadata["encrypted"])
	assert.NotEmpty(t, rec.Metadata["encrypted_key"])
}
