package replication

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// ConflictPolicy selects how apply resolves concurrent versions of the
// same document.
type ConflictPolicy string

const (
	ConflictLastWriteWins ConflictPolicy = "last-write-wins"
	ConflictManual        ConflictPolicy = "manual"
	ConflictCustom        ConflictPolicy = "custom"
)

// CustomMerger merges several concurrent versions of one document into a
// single result, scoped to one collection.
type CustomMerger func(versions []types.ConflictVersion) map[string]any

// ConflictResolver applies ConflictPolicy to a set of concurrent document
// versions observed during apply.
type ConflictResolver struct {
	store  storage.Store
	policy ConflictPolicy

	mu      sync.RWMutex
	mergers map[string]CustomMerger
}

// NewConflictResolver creates a ConflictResolver bound to store, using the
// given default policy (last-write-wins if unset).
func NewConflictResolver(store storage.Store, policy ConflictPolicy) *ConflictResolver {
	if policy == "" {
		policy = ConflictLastWriteWins
	}
	return &ConflictResolver{
		store:   store,
		policy:  policy,
		mergers: make(map[string]CustomMerger),
	}
}

// RegisterMerger installs a collection-scoped CustomMerger. Collections
// without a registered merger fall back to last-write-wins even under the
// "custom" policy.
func (cr *ConflictResolver) RegisterMerger(collection string, merger CustomMerger) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.mergers[collection] = merger
}

// Resolve returns the document data that should be applied for a
// concurrently-modified document, and records a ReplicationConflict when
// the policy is manual.
func (cr *ConflictResolver) Resolve(collection, documentID string, versions []types.ConflictVersion) (map[string]any, error) {
	metrics.ReplicationConflictsTotal.Inc()

	sorted := make([]types.ConflictVersion, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	switch cr.policy {
	case ConflictManual:
		return cr.resolveManual(collection, documentID, sorted)
	case ConflictCustom:
		cr.mu.RLock()
		merger, ok := cr.mergers[collection]
		cr.mu.RUnlock()
		if ok {
			return merger(sorted), nil
		}
		return lastWriteWins(sorted), nil
	default:
		return lastWriteWins(sorted), nil
	}
}

func lastWriteWins(sorted []types.ConflictVersion) map[string]any {
	if len(sorted) == 0 {
		return nil
	}
	return sorted[len(sorted)-1].Data
}

// resolveManual persists the conflict for operator review and, in the
// meantime, retains the first (earliest-timestamp) version.
func (cr *ConflictResolver) resolveManual(collection, documentID string, sorted []types.ConflictVersion) (map[string]any, error) {
	conflict := &types.ReplicationConflict{
		ID:         uuid.NewString(),
		Collection: collection,
		DocumentID: documentID,
		Versions:   sorted,
		Resolved:   false,
		CreatedAt:  time.Now(),
	}
	if err := cr.store.CreateConflict(conflict); err != nil {
		return nil, err
	}
	return sorted[0].Data, nil
}

// MergeLatestNonNull is a CustomMerger building block: iterate versions in
// ascending timestamp order and keep the most recent non-null value per
// field. Collections can register this directly or wrap it.
func MergeLatestNonNull(versions []types.ConflictVersion) map[string]any {
	merged := make(map[string]any)
	for _, v := range versions {
		for k, val := range v.Data {
			if val != nil {
				merged[k] = val
			}
		}
	}
	return merged
}
