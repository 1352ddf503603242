// Package connectortest provides an in-memory connector for tests of code that
// consumes core.Connector.
package connectortest

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/base"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// Table is the fixture behind one fake table
type Table struct {
	Schema *core.TableSchema
	Rows   []core.Row
	// FetchErr is returned by FetchRows for this table
	FetchErr error
}

// Fake is an in-memory core.Connector. The zero value is not usable; call New.
type Fake struct {
	*base.BaseConnector

	mu              sync.Mutex
	tables          map[string]*Table
	order           []string
	ConnectErr      error
	ListErr         error
	Unhealthy       bool
	ConnectCalls    int
	DisconnectCalls int
	Fetches         []core.FetchOptions
}

// New creates a fake connector of the given kind
func New(kind core.Kind) *Fake {
	return &Fake{
		BaseConnector: base.NewBaseConnector(kind, "test", core.ConnectionConfig{Kind: kind},
			core.CapabilityIntrospection, core.CapabilityIncremental),
		tables: make(map[string]*Table),
	}
}

// AddTable registers a table fixture; ListTables returns tables in insertion order
func (f *Fake) AddTable(name string, t *Table) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Schema == nil {
		t.Schema = &core.TableSchema{TableName: name}
	}
	if _, exists := f.tables[name]; !exists {
		f.order = append(f.order, name)
	}
	f.tables[name] = t
	return f
}

// Connect marks the fake connected unless ConnectErr is set
func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.ConnectCalls++
	err := f.ConnectErr
	f.mu.Unlock()

	if err != nil {
		return f.ConnectError(err)
	}
	f.SetConnected(true)
	return nil
}

// Disconnect marks the fake disconnected
func (f *Fake) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.DisconnectCalls++
	f.mu.Unlock()
	f.SetConnected(false)
	return nil
}

// TestConnection reports healthy unless Unhealthy is set
func (f *Fake) TestConnection(ctx context.Context) *core.ConnectorHealth {
	return f.Health(ctx, func(context.Context) (string, error) {
		if f.Unhealthy {
			return "", errors.New(errors.ErrorTypeConnection, "probe failed")
		}
		return "fake 1.0", nil
	})
}

// ListTables returns fixture names in insertion order
func (f *Fake) ListTables(ctx context.Context) ([]string, error) {
	if err := f.EnsureConnected("ListTables"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out, nil
}

// GetTableSchema returns the fixture schema
func (f *Fake) GetTableSchema(ctx context.Context, table string) (*core.TableSchema, error) {
	if err := f.EnsureConnected("GetTableSchema"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[table]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSchema, "table %s does not exist", table)
	}
	return t.Schema, nil
}

// FetchRows applies equality filters, the incremental filter and limit to fixture rows
func (f *Fake) FetchRows(ctx context.Context, opts core.FetchOptions) (*core.QueryResult, error) {
	if err := f.EnsureConnected("FetchRows"); err != nil {
		return nil, err
	}
	start := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches = append(f.Fetches, opts)

	t, ok := f.tables[opts.Table]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeQuery, "table %s does not exist", opts.Table)
	}
	if t.FetchErr != nil {
		return nil, t.FetchErr
	}

	rows := make([]core.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !matches(r, opts) {
			continue
		}
		rows = append(rows, r)
		if opts.Limit != nil && len(rows) >= *opts.Limit {
			break
		}
	}

	return &core.QueryResult{
		Rows:          rows,
		Fields:        t.Schema.Columns,
		RowCount:      len(rows),
		ExecutionTime: time.Since(start),
	}, nil
}

func matches(r core.Row, opts core.FetchOptions) bool {
	for k, want := range opts.Where {
		if !reflect.DeepEqual(r[k], want) {
			return false
		}
	}
	if opts.Incremental() {
		ts, ok := r[opts.SinceColumn].(time.Time)
		if !ok || !ts.After(*opts.Since) {
			return false
		}
	}
	return true
}
