package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
	_ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources/sqlite"
	"github.com/ajitpratap0/nebula-hub/pkg/models"
	"github.com/ajitpratap0/nebula-hub/pkg/normalizer"
	"github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
	"github.com/ajitpratap0/nebula-hub/pkg/testutil"
)

const shopSchema = `
CREATE TABLE customers (
	id    INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT
);
CREATE TABLE orders (
	id          INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	status      TEXT NOT NULL,
	updated_at  DATETIME NOT NULL
);
INSERT INTO customers (id, name, email) VALUES (1, 'Acme', 'ops@acme.test'), (2, 'Globex', NULL);
INSERT INTO orders (id, customer_id, status, updated_at) VALUES
	(1, 1, 'open', '2024-01-01 00:00:00'),
	(2, 1, 'paid', '2024-03-01 00:00:00'),
	(3, 2, 'open', '2024-06-01 00:00:00');
`

type collectingSink struct {
	mu   sync.Mutex
	docs map[string][]*models.NormalizedDocument
}

func (s *collectingSink) StoreDocuments(ctx context.Context, systemID, table string, docs []*models.NormalizedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = make(map[string][]*models.NormalizedDocument)
	}
	s.docs[table] = append(s.docs[table], docs...)
	return nil
}

func TestSyncSQLiteSystem(t *testing.T) {
	ctx := testutil.TestContext(t)

	o := orchestrator.New(registry.GetRegistry(), normalizer.New(), nil, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	sink := &collectingSink{}
	o.SetDocumentSink(sink)

	require.NoError(t, o.RegisterSystem(ctx, "shop", testutil.SeedSQLite(t, shopSchema)))

	result, err := o.SyncSystem(ctx, "shop", orchestrator.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.TablesProcessed)
	assert.Equal(t, 5, result.RowsProcessed)
	assert.Empty(t, result.Errors)

	customers := sink.docs["customers"]
	require.Len(t, customers, 2)
	assert.Equal(t, "shop:customers:1", customers[0].ID)
	assert.Equal(t, "Acme", customers[0].Title)
	assert.Equal(t, models.EntityCustomer, customers[0].EntityType)
	assert.Equal(t, int64(1), customers[0].Metadata["id"])
	assert.Contains(t, customers[0].SearchableText, "ops@acme.test")

	orders := sink.docs["orders"]
	require.Len(t, orders, 3)
	assert.Equal(t, models.EntityOrder, orders[2].EntityType)
	require.NotNil(t, orders[2].Timestamp)
	assert.Equal(t, 2024, orders[2].Timestamp.Year())
}

func TestSyncSQLiteTableIncremental(t *testing.T) {
	ctx := testutil.TestContext(t)

	o := orchestrator.New(registry.GetRegistry(), nil, nil, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	require.NoError(t, o.RegisterSystem(ctx, "shop", testutil.SeedSQLite(t, shopSchema)))

	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := o.SyncTable(ctx, "shop", "orders", orchestrator.TableSyncOptions{
		IncrementalColumn: "updated_at",
		LastSyncAt:        &since,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsProcessed)
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "shop:orders:2", result.Documents[0].ID)
	assert.Equal(t, "shop:orders:3", result.Documents[1].ID)
}
