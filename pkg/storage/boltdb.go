package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sbdlabs/clustercore/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes               = []byte("cluster_nodes")
	bucketReplicationLog      = []byte("replication_log")
	bucketReplicationApplyLog = []byte("replication_apply_log")
	bucketReplicationConflict = []byte("replication_conflicts")
	bucketClusterEvents       = []byte("cluster_events")
	bucketClusterAlerts       = []byte("cluster_alerts")
	bucketMigrations          = []byte("migrations")
	bucketMigrationTransfers  = []byte("migration_transfers")
	bucketMigrationInstances  = []byte("migration_instances")
	bucketScheduledMigrations = []byte("scheduled_migrations")
	bucketMigrationAudit      = []byte("migration_audit")
	bucketCA                  = []byte("cluster_ca")
)

const caKey = "root"

var internalBuckets = [][]byte{
	bucketNodes,
	bucketReplicationLog,
	bucketReplicationApplyLog,
	bucketReplicationConflict,
	bucketClusterEvents,
	bucketClusterAlerts,
	bucketMigrations,
	bucketMigrationTransfers,
	bucketMigrationInstances,
	bucketScheduledMigrations,
	bucketMigrationAudit,
	bucketCA,
}

// BoltStore implements Store on top of a single bbolt database file. One
// bucket per collection named in §5, plus a bucket-per-collection scheme
// for generic (non-internal) documents created on demand by PutDocument.
type BoltStore struct {
	db *bolt.DB

	mu       sync.RWMutex
	watchers map[int]WatchFunc
	nextID   int
}

// NewBoltStore opens (creating if absent) the clustercore database under
// dataDir and ensures every internal bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "clustercore.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range internalBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, watchers: make(map[int]WatchFunc)}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get[T any](tx *bolt.Tx, bucket []byte, key string, out *T) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

// --- Nodes ---

func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketNodes, node.ID, node) })
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketNodes, id, &node)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("node not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error { return s.CreateNode(node) }

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketNodes).Delete([]byte(id)) })
}

// --- Replication log ---

func (s *BoltStore) AppendReplicationEvent(event *types.ReplicationEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketReplicationLog, event.EventID, event) })
}

func (s *BoltStore) UpdateReplicationEvent(event *types.ReplicationEvent) error {
	return s.AppendReplicationEvent(event)
}

func (s *BoltStore) GetReplicationEvent(eventID string) (*types.ReplicationEvent, error) {
	var event types.ReplicationEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketReplicationLog, eventID, &event)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("replication event not found: %s", eventID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *BoltStore) ListPendingReplicationEvents(limit int) ([]*types.ReplicationEvent, error) {
	var events []*types.ReplicationEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplicationLog).ForEach(func(k, v []byte) error {
			var event types.ReplicationEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if event.Status == types.EventStatusPending || event.Status == types.EventStatusRetrying {
				events = append(events, &event)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].SequenceNumber < events[j].SequenceNumber })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *BoltStore) MaxSequenceNumber(sourceNodeID string) (int64, error) {
	var max int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplicationLog).ForEach(func(k, v []byte) error {
			var event types.ReplicationEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if event.SourceNodeID == sourceNodeID && event.SequenceNumber > max {
				max = event.SequenceNumber
			}
			return nil
		})
	})
	return max, err
}

// --- Apply idempotence log ---

func (s *BoltStore) HasApplied(eventID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketReplicationApplyLog).Get([]byte(eventID)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) MarkApplied(eventID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplicationApplyLog).Put([]byte(eventID), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
}

// --- Replication conflicts ---

func (s *BoltStore) CreateConflict(conflict *types.ReplicationConflict) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketReplicationConflict, conflict.ID, conflict) })
}

func (s *BoltStore) ListUnresolvedConflicts() ([]*types.ReplicationConflict, error) {
	var out []*types.ReplicationConflict
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplicationConflict).ForEach(func(k, v []byte) error {
			var c types.ReplicationConflict
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if !c.Resolved {
				out = append(out, &c)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ResolveConflict(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var c types.ReplicationConflict
		ok, err := get(tx, bucketReplicationConflict, id, &c)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("conflict not found: %s", id)
		}
		c.Resolved = true
		return put(tx, bucketReplicationConflict, id, &c)
	})
}

// --- Cluster events ---

func (s *BoltStore) AppendClusterEvent(event *types.ClusterEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketClusterEvents, event.ID, event) })
}

func (s *BoltStore) ListClusterEvents(limit int) ([]*types.ClusterEvent, error) {
	var events []*types.ClusterEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusterEvents).ForEach(func(k, v []byte) error {
			var e types.ClusterEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// --- Cluster alerts ---

func (s *BoltStore) UpsertAlert(alert *types.ClusterAlert) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketClusterAlerts, alert.ID, alert) })
}

func (s *BoltStore) GetAlert(id string) (*types.ClusterAlert, error) {
	var alert types.ClusterAlert
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketClusterAlerts, id, &alert)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &alert, nil
}

func (s *BoltStore) ListActiveAlerts() ([]*types.ClusterAlert, error) {
	var out []*types.ClusterAlert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusterAlerts).ForEach(func(k, v []byte) error {
			var a types.ClusterAlert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if !a.Resolved {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

// --- Migration records ---

func (s *BoltStore) CreateMigrationRecord(rec *types.MigrationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketMigrations, rec.MigrationID, rec) })
}

func (s *BoltStore) GetMigrationRecord(id string) (*types.MigrationRecord, error) {
	var rec types.MigrationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketMigrations, id, &rec)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("migration record not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) UpdateMigrationRecord(rec *types.MigrationRecord) error {
	return s.CreateMigrationRecord(rec)
}

func (s *BoltStore) ListMigrationRecords(createdBy string) ([]*types.MigrationRecord, error) {
	var out []*types.MigrationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMigrations).ForEach(func(k, v []byte) error {
			var rec types.MigrationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if createdBy == "" || rec.CreatedBy == createdBy {
				out = append(out, &rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteMigrationRecord(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketMigrations).Delete([]byte(id)) })
}

// --- Direct transfers ---

func (s *BoltStore) CreateTransfer(t *types.Transfer) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketMigrationTransfers, t.TransferID, t) })
}

func (s *BoltStore) GetTransfer(id string) (*types.Transfer, error) {
	var t types.Transfer
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketMigrationTransfers, id, &t)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transfer not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) UpdateTransfer(t *types.Transfer) error { return s.CreateTransfer(t) }

func (s *BoltStore) ListTransfers() ([]*types.Transfer, error) {
	var out []*types.Transfer
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMigrationTransfers).ForEach(func(k, v []byte) error {
			var t types.Transfer
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	return out, err
}

// --- Remote instances ---

func (s *BoltStore) CreateRemoteInstance(inst *types.RemoteInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketMigrationInstances, inst.InstanceID, inst) })
}

func (s *BoltStore) GetRemoteInstance(id string) (*types.RemoteInstance, error) {
	var inst types.RemoteInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketMigrationInstances, id, &inst)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("remote instance not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *BoltStore) UpdateRemoteInstance(inst *types.RemoteInstance) error {
	return s.CreateRemoteInstance(inst)
}

func (s *BoltStore) ListRemoteInstances(ownerID string) ([]*types.RemoteInstance, error) {
	var out []*types.RemoteInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMigrationInstances).ForEach(func(k, v []byte) error {
			var inst types.RemoteInstance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			if ownerID == "" || inst.OwnerID == ownerID {
				out = append(out, &inst)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteRemoteInstance(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketMigrationInstances).Delete([]byte(id)) })
}

// --- Scheduled migrations ---

func (s *BoltStore) CreateScheduledMigration(sch *types.ScheduledMigration) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketScheduledMigrations, sch.ID, sch) })
}

func (s *BoltStore) GetScheduledMigration(id string) (*types.ScheduledMigration, error) {
	var sch types.ScheduledMigration
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx, bucketScheduledMigrations, id, &sch)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("scheduled migration not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sch, nil
}

func (s *BoltStore) UpdateScheduledMigration(sch *types.ScheduledMigration) error {
	return s.CreateScheduledMigration(sch)
}

func (s *BoltStore) ListScheduledMigrations() ([]*types.ScheduledMigration, error) {
	var out []*types.ScheduledMigration
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScheduledMigrations).ForEach(func(k, v []byte) error {
			var sch types.ScheduledMigration
			if err := json.Unmarshal(v, &sch); err != nil {
				return err
			}
			out = append(out, &sch)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteScheduledMigration(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketScheduledMigrations).Delete([]byte(id)) })
}

// --- Migration audit trail ---

func (s *BoltStore) AppendAuditRecord(rec *types.MigrationAuditRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketMigrationAudit, rec.ID, rec) })
}

func (s *BoltStore) ListAuditByMigration(migrationID string) ([]*types.MigrationAuditRecord, error) {
	var out []*types.MigrationAuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMigrationAudit).ForEach(func(k, v []byte) error {
			var rec types.MigrationAuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.MigrationID == migrationID {
				out = append(out, &rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListAuditByTenant(tenantID string) ([]*types.MigrationAuditRecord, error) {
	var out []*types.MigrationAuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMigrationAudit).ForEach(func(k, v []byte) error {
			var rec types.MigrationAuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.TenantID == tenantID {
				out = append(out, &rec)
			}
			return nil
		})
	})
	return out, err
}

// --- Generic document store + change stream ---

func collectionBucket(collection string) []byte { return []byte("doc_" + collection) }

func (s *BoltStore) PutDocument(collection, id string, data map[string]any) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(collectionBucket(collection))
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
	if err != nil {
		return err
	}
	s.notify(Mutation{Operation: types.OpUpdate, Collection: collection, DocumentID: id, Data: data, Timestamp: time.Now().UTC()})
	return nil
}

func (s *BoltStore) GetDocument(collection, id string) (map[string]any, bool, error) {
	var data map[string]any
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucket(collection))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &data)
	})
	return data, found, err
}

func (s *BoltStore) DeleteDocument(collection, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucket(collection))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	s.notify(Mutation{Operation: types.OpDelete, Collection: collection, DocumentID: id, Timestamp: time.Now().UTC()})
	return nil
}

func (s *BoltStore) ListDocuments(collection string) ([]map[string]any, error) {
	var out []map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucket(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var doc map[string]any
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			out = append(out, doc)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListDocumentRecords(collection string) ([]DocumentRecord, error) {
	var out []DocumentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucket(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var doc map[string]any
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			out = append(out, DocumentRecord{ID: string(k), Data: doc})
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListCollections() ([]string, error) {
	var out []string
	prefix := []byte("doc_")
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !bytes.HasPrefix(name, prefix) {
				return nil
			}
			out = append(out, strings.TrimPrefix(string(name), "doc_"))
			return nil
		})
	})
	sort.Strings(out)
	return out, err
}

// --- Cluster CA ---

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCA).Get([]byte(caKey))
		if raw == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	return data, err
}

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte(caKey), data)
	})
}

func (s *BoltStore) Watch(fn WatchFunc) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *BoltStore) notify(m Mutation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.watchers {
		fn(m)
	}
}
