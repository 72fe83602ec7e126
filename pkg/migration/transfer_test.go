package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/types"
)

func TestStartTransfer_RecordsDocumentTotal(t *testing.T) {
	h := newTestHarness(t)
	seedCollection(t, h.store, "widgets", map[string]map[string]any{
		"w1": {"name": "left widget"},
		"w2": {"name": "right widget"},
	})

	runner := NewTransferRunner(h.store, h.broker)
	encrypted, err := security.Encrypt([]byte("remote-api-key"))
	require.NoError(t, err)

	target := types.RemoteInstance{
		InstanceID:      "remote-1",
		BaseURL:         "http://127.0.0.1:0",
		EncryptedAPIKey: encrypted,
	}

	transfer, err := runner.StartTransfer(target, []string{"widgets"}, "last_write_wins", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), transfer.DocumentsTotal)
	assert.Equal(t, types.TransferPending, transfer.Status)
}

func TestStartTransfer_DoesNotAbortWhenSourceExceedsTargetCapacity(t *testing.T) {
	h := newTestHarness(t)
	seedCollection(t, h.store, "widgets", map[string]map[string]any{
		"w1": {"name": "left widget", "description": "a reasonably sized document body"},
		"w2": {"name": "right widget", "description": "another reasonably sized document body"},
	})

	runner := NewTransferRunner(h.store, h.broker)
	encrypted, err := security.Encrypt([]byte("remote-api-key"))
	require.NoError(t, err)

	target := types.RemoteInstance{
		InstanceID:      "remote-1",
		BaseURL:         "http://127.0.0.1:0",
		EncryptedAPIKey: encrypted,
		CachedSizeBytes: 1, // far smaller than the seeded source data
	}

	transfer, err := runner.StartTransfer(target, []string{"widgets"}, "last_write_wins", 0)
	require.NoError(t, err)
	assert.Equal(t, types.TransferPending, transfer.Status)
	assert.Equal(t, int64(2), transfer.DocumentsTotal)
}
