package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/connectortest"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/models"
	"github.com/ajitpratap0/nebula-hub/pkg/normalizer"
)

// fakeFactory hands out fakes keyed by ConnectionConfig.Database
type fakeFactory struct {
	mu    sync.Mutex
	fakes map[string]*connectortest.Fake
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{fakes: make(map[string]*connectortest.Fake)}
}

func (f *fakeFactory) add(database string, fake *connectortest.Fake) *connectortest.Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fakes[database] = fake
	return fake
}

func (f *fakeFactory) Create(cfg core.ConnectionConfig) (core.Connector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fake, ok := f.fakes[cfg.Database]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedKind, "no fake for %s", cfg.Database)
	}
	return fake, nil
}

func (f *fakeFactory) IsSupported(kind core.Kind) bool {
	return kind.IsKnown()
}

func pgConfig(database string) core.ConnectionConfig {
	return core.ConnectionConfig{Kind: core.KindPostgreSQL, Host: "localhost", Database: database}
}

var customersSchema = &core.TableSchema{
	TableName: "customers",
	Columns: []core.ColumnDefinition{
		{Name: "id", Type: "integer", IsPrimaryKey: true},
		{Name: "name", Type: "text"},
		{Name: "password", Type: "text"},
		{Name: "created_at", Type: "timestamp"},
	},
	PrimaryKeys: []string{"id"},
}

func customersTable() *connectortest.Table {
	return &connectortest.Table{
		Schema: customersSchema,
		Rows: []core.Row{
			{"id": "7", "name": "Acme", "password": "x", "created_at": "2024-01-01T00:00:00Z"},
			{"id": "8", "name": "Globex", "password": "y", "created_at": "2024-03-01T00:00:00Z"},
		},
	}
}

func newTestOrchestrator(t *testing.T, factory registry.Factory, config *Config) *Orchestrator {
	t.Helper()
	return New(factory, normalizer.New(), config, zaptest.NewLogger(t))
}

func TestNewDefaults(t *testing.T) {
	o := New(nil, nil, &Config{BatchSize: -1}, nil)
	assert.Equal(t, DefaultBatchSize, o.BatchSize())
	assert.NotNil(t, o.Normalizer())
	assert.Empty(t, o.ListSystems())
}

func TestRegisterSystem(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("crm", connectortest.New(core.KindPostgreSQL))
	o := newTestOrchestrator(t, factory, nil)

	require.NoError(t, o.RegisterSystem(ctx, "crm", pgConfig("crm")))
	assert.Equal(t, []string{"crm"}, o.ListSystems())
	assert.True(t, fake.IsConnected())

	health, err := o.TestConnection(ctx, "crm")
	require.NoError(t, err)
	assert.True(t, health.IsConnected)
	assert.Equal(t, "fake 1.0", health.Version)
}

func TestRegisterSystemFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("empty id", func(t *testing.T) {
		o := newTestOrchestrator(t, newFakeFactory(), nil)
		err := o.RegisterSystem(ctx, " ", pgConfig("crm"))
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("unsupported kind", func(t *testing.T) {
		o := newTestOrchestrator(t, registry.NewRegistry(), nil)
		err := o.RegisterSystem(ctx, "erp", core.ConnectionConfig{Kind: core.KindOracle})
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedKind))
		assert.Empty(t, o.ListSystems())
	})

	t.Run("connect error", func(t *testing.T) {
		factory := newFakeFactory()
		fake := factory.add("crm", connectortest.New(core.KindPostgreSQL))
		fake.ConnectErr = fmt.Errorf("connection refused")
		o := newTestOrchestrator(t, factory, nil)

		err := o.RegisterSystem(ctx, "crm", pgConfig("crm"))
		assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
		assert.Empty(t, o.ListSystems())
	})

	t.Run("unhealthy adapter is discarded", func(t *testing.T) {
		factory := newFakeFactory()
		fake := factory.add("crm", connectortest.New(core.KindPostgreSQL))
		fake.Unhealthy = true
		o := newTestOrchestrator(t, factory, nil)

		err := o.RegisterSystem(ctx, "crm", pgConfig("crm"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
		assert.Contains(t, err.Error(), "probe failed")
		assert.Equal(t, 1, fake.DisconnectCalls)
		assert.False(t, fake.IsConnected())
		assert.Empty(t, o.ListSystems())
	})
}

func TestRegisterSystemReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	first := factory.add("crm_v1", connectortest.New(core.KindPostgreSQL))
	second := factory.add("crm_v2", connectortest.New(core.KindPostgreSQL))
	o := newTestOrchestrator(t, factory, nil)

	require.NoError(t, o.RegisterSystem(ctx, "crm", pgConfig("crm_v1")))
	require.NoError(t, o.RegisterSystem(ctx, "crm", pgConfig("crm_v2")))

	conn, err := o.Connector("crm")
	require.NoError(t, err)
	assert.Same(t, second, conn)
	assert.Equal(t, 1, first.DisconnectCalls)
	assert.Equal(t, []string{"crm"}, o.ListSystems())
}

func TestRegisterSystemKeepsPreviousWhenReplacementFails(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	first := factory.add("crm_v1", connectortest.New(core.KindPostgreSQL))
	broken := factory.add("crm_v2", connectortest.New(core.KindPostgreSQL))
	broken.Unhealthy = true
	o := newTestOrchestrator(t, factory, nil)

	require.NoError(t, o.RegisterSystem(ctx, "crm", pgConfig("crm_v1")))
	require.Error(t, o.RegisterSystem(ctx, "crm", pgConfig("crm_v2")))

	conn, err := o.Connector("crm")
	require.NoError(t, err)
	assert.Same(t, first, conn)
	assert.Equal(t, 0, first.DisconnectCalls)
}

func TestUnregisterSystem(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("crm", connectortest.New(core.KindPostgreSQL))
	o := newTestOrchestrator(t, factory, nil)

	require.NoError(t, o.RegisterSystem(ctx, "crm", pgConfig("crm")))
	require.NoError(t, o.UnregisterSystem(ctx, "crm"))
	assert.Empty(t, o.ListSystems())
	assert.Equal(t, 1, fake.DisconnectCalls)

	// absent id is a no-op
	require.NoError(t, o.UnregisterSystem(ctx, "crm"))
	assert.Equal(t, 1, fake.DisconnectCalls)
}

func TestUnknownSystem(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, newFakeFactory(), nil)

	_, err := o.Connector("ghost")
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))
	_, err = o.TestConnection(ctx, "ghost")
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))
	_, err = o.ListTables(ctx, "ghost")
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))
	_, err = o.GetTableSchema(ctx, "ghost", "customers")
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))
	_, err = o.ExecuteQuery(ctx, "ghost", "SELECT 1", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))
	_, err = o.SyncTable(ctx, "ghost", "customers", TableSyncOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))

	result, err := o.SyncSystem(ctx, "ghost", SyncOptions{})
	assert.Nil(t, result)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSystemNotFound))
}

func TestIntrospectionPassThrough(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	factory.add("crm", connectortest.New(core.KindPostgreSQL)).
		AddTable("customers", customersTable()).
		AddTable("orders", &connectortest.Table{})
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "crm", pgConfig("crm")))

	tables, err := o.ListTables(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)

	schema, err := o.GetTableSchema(ctx, "crm", "customers")
	require.NoError(t, err)
	assert.Equal(t, "id", schema.PrimaryKey())

	_, err = o.ExecuteQuery(ctx, "crm", "SELECT 1", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
}

func TestSyncTable(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("s1", connectortest.New(core.KindPostgreSQL)).AddTable("customers", customersTable())
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	result, err := o.SyncTable(ctx, "s1", "customers", TableSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsProcessed)
	require.Len(t, result.Documents, 2)

	doc := result.Documents[0]
	assert.Equal(t, "s1:customers:7", doc.ID)
	assert.Equal(t, "Acme", doc.Title)
	assert.Equal(t, models.EntityCustomer, doc.EntityType)
	assert.Contains(t, doc.SearchableText, "Acme")
	assert.NotContains(t, doc.SearchableText, "x")
	assert.Contains(t, doc.Tags, "type:customer")
	// TransformRow coerced the declared integer column before normalization
	assert.Equal(t, int64(7), doc.Metadata["id"])
	require.NotNil(t, doc.Timestamp)
	assert.True(t, doc.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	require.Len(t, fake.Fetches, 1)
	fetch := fake.Fetches[0]
	require.NotNil(t, fetch.Limit)
	assert.Equal(t, DefaultBatchSize, *fetch.Limit)
	assert.False(t, fetch.Incremental())
}

func TestSyncTableIncremental(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	fake := factory.add("s1", connectortest.New(core.KindPostgreSQL)).AddTable("events", &connectortest.Table{
		Schema: &core.TableSchema{
			TableName:   "events",
			Columns:     []core.ColumnDefinition{{Name: "id", Type: "integer"}, {Name: "updated_at", Type: "timestamp"}},
			PrimaryKeys: []string{"id"},
		},
		Rows: []core.Row{
			{"id": int64(1), "updated_at": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			{"id": int64(2), "updated_at": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
	})
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	// column without a timestamp leaves the window off
	_, err := o.SyncTable(ctx, "s1", "events", TableSyncOptions{IncrementalColumn: "updated_at"})
	require.NoError(t, err)
	assert.False(t, fake.Fetches[0].Incremental())

	result, err := o.SyncTable(ctx, "s1", "events", TableSyncOptions{IncrementalColumn: "updated_at", LastSyncAt: &since})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsProcessed)
	assert.Equal(t, "s1:events:2", result.Documents[0].ID)

	fetch := fake.Fetches[1]
	assert.True(t, fetch.Incremental())
	assert.Equal(t, "updated_at", fetch.SinceColumn)
	assert.Equal(t, []core.OrderBy{{Column: "updated_at", Direction: core.SortAsc}}, fetch.OrderBy)
}

func TestSyncTableBatchCeiling(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("s1", connectortest.New(core.KindPostgreSQL)).AddTable("customers", customersTable())
	o := newTestOrchestrator(t, factory, &Config{BatchSize: 1})
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	result, err := o.SyncTable(ctx, "s1", "customers", TableSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsProcessed)
	assert.Equal(t, 1, *fake.Fetches[0].Limit)
}

func TestSyncTableErrors(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	factory.add("s1", connectortest.New(core.KindPostgreSQL)).
		AddTable("broken", &connectortest.Table{FetchErr: errors.New(errors.ErrorTypeQuery, "relation does not exist")})
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	_, err := o.SyncTable(ctx, "s1", "missing", TableSyncOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))

	_, err = o.SyncTable(ctx, "s1", "broken", TableSyncOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestSyncSystemStatus(t *testing.T) {
	fetchErr := errors.New(errors.ErrorTypeQuery, "fetch failed")

	tests := []struct {
		name       string
		tables     map[string]*connectortest.Table
		wantStatus SyncStatus
		wantRows   int
		wantErrors []string
	}{
		{
			name: "all tables succeed",
			tables: map[string]*connectortest.Table{
				"A": customersTable(),
				"B": customersTable(),
			},
			wantStatus: StatusSuccess,
			wantRows:   4,
			wantErrors: []string{},
		},
		{
			name: "first table fails",
			tables: map[string]*connectortest.Table{
				"A": {FetchErr: fetchErr},
				"B": customersTable(),
			},
			wantStatus: StatusPartial,
			wantRows:   2,
			wantErrors: []string{"A"},
		},
		{
			name: "every table fails",
			tables: map[string]*connectortest.Table{
				"A": {FetchErr: fetchErr},
				"B": {FetchErr: fetchErr},
			},
			wantStatus: StatusFailed,
			wantRows:   0,
			wantErrors: []string{"A", "B"},
		},
		{
			name: "failure with empty sibling",
			tables: map[string]*connectortest.Table{
				"A": {FetchErr: fetchErr},
				"B": {},
			},
			wantStatus: StatusFailed,
			wantRows:   0,
			wantErrors: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			factory := newFakeFactory()
			fake := factory.add("s1", connectortest.New(core.KindPostgreSQL))
			fake.AddTable("A", tt.tables["A"]).AddTable("B", tt.tables["B"])
			o := newTestOrchestrator(t, factory, nil)
			require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

			result, err := o.SyncSystem(ctx, "s1", SyncOptions{Tables: []string{"A", "B"}})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, 2, result.TablesProcessed)
			assert.Equal(t, tt.wantRows, result.RowsProcessed)

			got := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				got = append(got, e.Table)
				assert.NotEmpty(t, e.Error)
			}
			assert.Equal(t, tt.wantErrors, got)
		})
	}
}

func TestSyncSystemResolvesTables(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("s1", connectortest.New(core.KindPostgreSQL)).
		AddTable("customers", customersTable()).
		AddTable("orders", &connectortest.Table{}).
		AddTable("users", &connectortest.Table{})
	o := newTestOrchestrator(t, factory, nil)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	o.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	result, err := o.SyncSystem(ctx, "s1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("s1_%d", start.UnixMilli()), result.JobID)
	assert.Equal(t, "s1", result.SystemID)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, result.TablesProcessed)
	assert.Equal(t, 2, result.RowsProcessed)
	assert.Equal(t, 1500*time.Millisecond, result.Duration)
	assert.Equal(t, int64(1500), result.DurationMs)

	var order []string
	for _, f := range fake.Fetches {
		order = append(order, f.Table)
	}
	assert.Equal(t, []string{"customers", "orders", "users"}, order)

	// explicit list keeps the caller's order
	fake.Fetches = nil
	_, err = o.SyncSystem(ctx, "s1", SyncOptions{Tables: []string{"users", "customers"}})
	require.NoError(t, err)
	require.Len(t, fake.Fetches, 2)
	assert.Equal(t, "users", fake.Fetches[0].Table)
	assert.Equal(t, "customers", fake.Fetches[1].Table)
}

func TestSyncSystemListTablesFailure(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("s1", connectortest.New(core.KindPostgreSQL))
	fake.ListErr = errors.New(errors.ErrorTypeSchema, "permission denied")
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	result, err := o.SyncSystem(ctx, "s1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, result.TablesProcessed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, AllTables, result.Errors[0].Table)
	assert.Contains(t, result.Errors[0].Error, "permission denied")
}

func TestSyncSystemAfterDisconnect(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	fake := factory.add("s1", connectortest.New(core.KindPostgreSQL)).AddTable("customers", customersTable())
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))
	require.NoError(t, fake.Disconnect(ctx))

	result, err := o.SyncSystem(ctx, "s1", SyncOptions{Tables: []string{"customers"}})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "not connected")
}

type recordingSink struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (s *recordingSink) StoreDocuments(ctx context.Context, systemID, table string, docs []*models.NormalizedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[systemID+":"+table] += len(docs)
	return s.err
}

func TestDocumentSink(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	factory.add("s1", connectortest.New(core.KindPostgreSQL)).AddTable("customers", customersTable())
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "s1", pgConfig("s1")))

	sink := &recordingSink{}
	o.SetDocumentSink(sink)
	result, err := o.SyncSystem(ctx, "s1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, sink.calls["s1:customers"])

	sink.err = fmt.Errorf("index unavailable")
	result, err = o.SyncSystem(ctx, "s1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "index unavailable")
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	factory.add("crm", connectortest.New(core.KindPostgreSQL))
	o := newTestOrchestrator(t, factory, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = o.RegisterSystem(ctx, "crm", pgConfig("crm"))
		}()
		go func() {
			defer wg.Done()
			_ = o.UnregisterSystem(ctx, "crm")
		}()
	}
	wg.Wait()

	ids := o.ListSystems()
	assert.LessOrEqual(t, len(ids), 1)

	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	assert.Empty(t, o.locks)
}

func TestIDLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	o := newTestOrchestrator(t, factory, nil)

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("sys%d", i)
		factory.add(id, connectortest.New(core.KindPostgreSQL))
		require.NoError(t, o.RegisterSystem(ctx, id, pgConfig(id)))
		require.NoError(t, o.UnregisterSystem(ctx, id))
	}
	require.Error(t, o.RegisterSystem(ctx, "missing", pgConfig("missing")))

	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	assert.Empty(t, o.locks)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	a := factory.add("a", connectortest.New(core.KindPostgreSQL))
	b := factory.add("b", connectortest.New(core.KindMySQL))
	o := newTestOrchestrator(t, factory, nil)
	require.NoError(t, o.RegisterSystem(ctx, "a", pgConfig("a")))
	require.NoError(t, o.RegisterSystem(ctx, "b", pgConfig("b")))

	require.NoError(t, o.Close(ctx))
	assert.Empty(t, o.ListSystems())
	assert.Equal(t, 1, a.DisconnectCalls)
	assert.Equal(t, 1, b.DisconnectCalls)
}
