package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// remoteChunkSize is the number of documents pushed to a remote instance
// per HTTP request.
const remoteChunkSize = 200

// transferChunk is the wire payload pushed to a remote instance's
// /migration/transfer/ingest endpoint for one batch of one collection.
type transferChunk struct {
	TransferID     string           `json:"transfer_id"`
	CollectionName string           `json:"collection_name"`
	Documents      []map[string]any `json:"documents"`
	Final          bool             `json:"final"`
}

// TransferRunner drives a direct, collection-by-collection streaming
// transfer between this instance and a registered remote instance.
type TransferRunner struct {
	store  storage.Store
	broker *events.Broker
	client *http.Client

	mu       sync.Mutex
	pauseCh  map[string]chan struct{}
	cancelCh map[string]chan struct{}
}

// NewTransferRunner builds a TransferRunner posting chunks with a 30s
// per-request timeout.
func NewTransferRunner(store storage.Store, broker *events.Broker) *TransferRunner {
	return &TransferRunner{
		store:    store,
		broker:   broker,
		client:   &http.Client{Timeout: 30 * time.Second},
		pauseCh:  make(map[string]chan struct{}),
		cancelCh: make(map[string]chan struct{}),
	}
}

func (r *TransferRunner) publish(eventType events.EventType, message string, meta map[string]string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{Type: eventType, Message: message, Metadata: meta})
}

// StartTransfer creates a Transfer record and runs it in the background.
func (r *TransferRunner) StartTransfer(target types.RemoteInstance, collections []string, conflictResolution string, throttleMbps float64) (*types.Transfer, error) {
	var total int64
	var totalBytes int64
	for _, c := range collections {
		records, err := r.store.ListDocumentRecords(c)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", c, err)
		}
		total += int64(len(records))
		for _, rec := range records {
			if encoded, err := json.Marshal(rec.Data); err == nil {
				totalBytes += int64(len(encoded))
			}
		}
	}

	if target.CachedSizeBytes > 0 && totalBytes > target.CachedSizeBytes {
		log.WithComponent("migration-transfer").Warn().
			Str("target_instance_id", target.InstanceID).
			Int64("source_bytes", totalBytes).
			Int64("target_capacity_bytes", target.CachedSizeBytes).
			Msg("source size exceeds target instance capacity, proceeding anyway")
	}

	t := &types.Transfer{
		TransferID:         uuid.NewString(),
		TargetInstanceID:   target.InstanceID,
		Collections:        collections,
		ConflictResolution: conflictResolution,
		Status:             types.TransferPending,
		DocumentsTotal:     total,
		ThrottleMbps:       throttleMbps,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := r.store.CreateTransfer(t); err != nil {
		return nil, fmt.Errorf("creating transfer record: %w", err)
	}

	r.mu.Lock()
	r.pauseCh[t.TransferID] = make(chan struct{}, 1)
	r.cancelCh[t.TransferID] = make(chan struct{})
	r.mu.Unlock()

	go r.run(t, target)

	return t, nil
}

// Pause signals a running transfer to suspend after its current chunk.
func (r *TransferRunner) Pause(transferID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.pauseCh[transferID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Resume clears a transfer's pause signal.
func (r *TransferRunner) Resume(transferID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.pauseCh[transferID]; ok {
		select {
		case <-ch:
		default:
		}
	}
}

// Cancel stops a running transfer permanently.
func (r *TransferRunner) Cancel(transferID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.cancelCh[transferID]; ok {
		close(ch)
		delete(r.cancelCh, transferID)
	}
}

func (r *TransferRunner) isPaused(transferID string) bool {
	r.mu.Lock()
	ch := r.pauseCh[transferID]
	r.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case v, ok := <-ch:
		if ok {
			ch <- v
			return true
		}
		return false
	default:
		return false
	}
}

func (r *TransferRunner) isCancelled(transferID string) bool {
	r.mu.Lock()
	ch := r.cancelCh[transferID]
	r.mu.Unlock()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (r *TransferRunner) run(t *types.Transfer, target types.RemoteInstance) {
	logger := log.WithComponent("migration-transfer")

	apiKey, err := security.Decrypt(target.EncryptedAPIKey)
	if err != nil {
		r.fail(t, fmt.Errorf("decrypting remote api key: %w", err))
		return
	}

	t.Status = types.TransferInProgress
	_ = r.store.UpdateTransfer(t)
	r.publish(events.EventTransferProgress, "transfer started", map[string]string{"transfer_id": t.TransferID})

	start := time.Now()
	var bytesSent int64

	for _, collName := range t.Collections {
		if r.isCancelled(t.TransferID) {
			r.cancel(t)
			return
		}

		records, err := r.store.ListDocumentRecords(collName)
		if err != nil {
			r.fail(t, fmt.Errorf("listing %s: %w", collName, err))
			return
		}

		t.CurrentCollection = collName
		for i := 0; i < len(records); i += remoteChunkSize {
			for r.isPaused(t.TransferID) {
				t.Paused = true
				_ = r.store.UpdateTransfer(t)
				time.Sleep(500 * time.Millisecond)
				if r.isCancelled(t.TransferID) {
					r.cancel(t)
					return
				}
			}
			t.Paused = false

			end := i + remoteChunkSize
			if end > len(records) {
				end = len(records)
			}
			docs := make([]map[string]any, 0, end-i)
			for _, rec := range records[i:end] {
				doc := make(map[string]any, len(rec.Data)+1)
				for k, v := range rec.Data {
					doc[k] = v
				}
				doc[idKey] = rec.ID
				docs = append(docs, doc)
			}

			n, err := r.pushChunk(context.Background(), target, string(apiKey), t.TransferID, collName, docs, end == len(records))
			if err != nil {
				r.fail(t, fmt.Errorf("pushing %s chunk: %w", collName, err))
				return
			}
			bytesSent += int64(n)

			t.DocumentsTransferred += int64(end - i)
			if t.DocumentsTotal > 0 {
				t.PercentComplete = float64(t.DocumentsTransferred) / float64(t.DocumentsTotal) * 100
			}
			elapsed := time.Since(start).Seconds()
			if elapsed > 0 && t.DocumentsTransferred > 0 {
				rate := float64(t.DocumentsTransferred) / elapsed
				remaining := float64(t.DocumentsTotal - t.DocumentsTransferred)
				if rate > 0 {
					t.ETASeconds = remaining / rate
				}
			}
			t.UpdatedAt = time.Now().UTC()
			_ = r.store.UpdateTransfer(t)
			r.publish(events.EventTransferProgress, "transfer progress", map[string]string{
				"transfer_id": t.TransferID,
				"collection":  collName,
			})

			r.throttle(t.ThrottleMbps, n)
		}
	}

	t.Status = types.TransferCompleted
	t.PercentComplete = 100
	t.UpdatedAt = time.Now().UTC()
	_ = r.store.UpdateTransfer(t)
	r.publish(events.EventTransferProgress, "transfer completed", map[string]string{"transfer_id": t.TransferID})

	logger.Info().Str("transfer_id", t.TransferID).Int64("bytes_sent", bytesSent).Msg("direct transfer completed")
}

func (r *TransferRunner) pushChunk(ctx context.Context, target types.RemoteInstance, apiKey, transferID, collection string, docs []map[string]any, final bool) (int, error) {
	payload, err := json.Marshal(transferChunk{TransferID: transferID, CollectionName: collection, Documents: docs, Final: final})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/migration/transfer/ingest", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("remote instance returned status %d", resp.StatusCode)
	}
	return len(payload), nil
}

// throttle sleeps long enough to keep the transfer under the configured
// bandwidth cap; a non-positive cap disables throttling.
func (r *TransferRunner) throttle(mbps float64, bytesSent int) {
	if mbps <= 0 {
		return
	}
	bytesPerSec := mbps * 1024 * 1024 / 8
	seconds := float64(bytesSent) / bytesPerSec
	if seconds > 0 {
		time.Sleep(time.Duration(seconds * float64(time.Second)))
	}
}

func (r *TransferRunner) fail(t *types.Transfer, cause error) {
	t.Status = types.TransferFailed
	t.Error = cause.Error()
	t.UpdatedAt = time.Now().UTC()
	_ = r.store.UpdateTransfer(t)
	r.publish(events.EventTransferProgress, "transfer failed", map[string]string{"transfer_id": t.TransferID})
	log.WithComponent("migration-transfer").Error().Err(cause).Str("transfer_id", t.TransferID).Msg("direct transfer failed")
}

func (r *TransferRunner) cancel(t *types.Transfer) {
	t.Status = types.TransferCancelled
	t.UpdatedAt = time.Now().UTC()
	_ = r.store.UpdateTransfer(t)
	r.publish(events.EventTransferProgress, "transfer cancelled", map[string]string{"transfer_id": t.TransferID})
}
