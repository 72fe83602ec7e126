package migration

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbdlabs/clustercore/pkg/cache"
	"github.com/sbdlabs/clustercore/pkg/events"
	"github.com/sbdlabs/clustercore/pkg/security"
	"github.com/sbdlabs/clustercore/pkg/storage"
)

func TestMain(m *testing.M) {
	key, err := security.GenerateKey()
	if err != nil {
		panic(err)
	}
	if err := security.SetClusterEncryptionKey(key); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testHarness struct {
	store   storage.Store
	broker  *events.Broker
	lock    *TenantLock
	limiter *RateLimiter
	audit   *AuditLogger
	cfg     Config
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	c := cache.NewFallbackCache(nil)
	cfg := DefaultConfig()
	cfg.StorageDir = t.TempDir()

	return &testHarness{
		store:   store,
		broker:  broker,
		lock:    NewTenantLock(c),
		limiter: NewRateLimiter(c, 1),
		audit:   NewAuditLogger(store),
		cfg:     cfg,
	}
}

func seedCollection(t *testing.T, store storage.Store, collection string, docs map[string]map[string]any) {
	t.Helper()
	for id, data := range docs {
		require.NoError(t, store.PutDocument(collection, id, data))
	}
}
