// Package sqlsource implements the source adapter shared by every database/sql
// driver. Dialect packages (mysql, mssql, sqlite) supply the driver name, DSN,
// query dialect and catalog queries.
package sqlsource

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/base"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sqlquery"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// Catalog answers introspection questions for one dialect
type Catalog interface {
	ListTables(ctx context.Context, db *sql.DB, schema string) ([]string, error)
	TableSchema(ctx context.Context, db *sql.DB, schema, table string) (*core.TableSchema, error)
}

// Dialect describes one database/sql backed source kind
type Dialect struct {
	Kind       core.Kind
	DriverName string
	Version    string
	SQL        sqlquery.Dialect
	DSN        func(cfg core.ConnectionConfig) (string, error)
	// VersionQuery returns the server version as a single string column
	VersionQuery string
	Catalog      Catalog
	// DefaultSchema qualifies bare table names; empty leaves them bare
	DefaultSchema string
	// MaxConns overrides the pool default when the config leaves it unset
	MaxConns int
	// BinaryTypes lists database type names whose []byte values are kept as bytes
	BinaryTypes []string
}

// Source implements core.Connector over database/sql
type Source struct {
	*base.BaseConnector

	dialect Dialect
	db      *sql.DB
	mu      sync.RWMutex
}

var (
	_ core.Connector     = (*Source)(nil)
	_ core.QueryExecutor = (*Source)(nil)
)

// Capabilities advertised by every database/sql adapter
func (d Dialect) Capabilities() []string {
	return []string{
		core.CapabilityIntrospection,
		core.CapabilityIncremental,
		core.CapabilityRawQuery,
		core.CapabilityForeignKeys,
		core.CapabilityIndexes,
	}
}

// New creates a disconnected adapter for the dialect
func New(d Dialect, cfg core.ConnectionConfig) *Source {
	return &Source{
		BaseConnector: base.NewBaseConnector(d.Kind, d.Version, cfg, d.Capabilities()...),
		dialect:       d,
	}
}

// Dialect returns the dialect the source was built with
func (s *Source) Dialect() Dialect {
	return s.dialect
}

// Connect opens the pool and probes it before marking the adapter connected
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	s.SetConnected(false)

	dsn, err := s.dialect.DSN(s.Config())
	if err != nil {
		return s.ConnectError(err)
	}

	db, err := sql.Open(s.dialect.DriverName, dsn)
	if err != nil {
		return s.ConnectError(err)
	}
	s.configurePool(db)

	pingCtx := ctx
	if timeout := s.Config().Pool.ConnectTimeout; timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	version, err := s.probe(pingCtx, db)
	if err != nil {
		_ = db.Close()
		return s.ConnectError(err)
	}

	s.db = db
	s.SetConnected(true)
	s.GetLogger().Info("connected to source", zap.String("version", version))
	return nil
}

func (s *Source) configurePool(db *sql.DB) {
	pool := s.Config().Pool

	maxConns := pool.MaxConns
	if maxConns <= 0 {
		maxConns = s.dialect.MaxConns
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)

	idle := pool.MinConns
	if idle <= 0 {
		idle = maxConns / 4
	}
	if idle < 1 {
		idle = 1
	}
	db.SetMaxIdleConns(idle)

	lifetime := pool.MaxConnLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	db.SetConnMaxLifetime(lifetime)

	idleTime := pool.MaxConnIdleTime
	if idleTime <= 0 {
		idleTime = 30 * time.Minute
	}
	db.SetConnMaxIdleTime(idleTime)
}

func (s *Source) probe(ctx context.Context, db *sql.DB) (string, error) {
	if err := db.PingContext(ctx); err != nil {
		return "", err
	}
	var version string
	if err := db.QueryRowContext(ctx, s.dialect.VersionQuery).Scan(&version); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeQuery, "failed to get server version")
	}
	return version, nil
}

// Disconnect closes the pool
func (s *Source) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.SetConnected(false)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close pool")
	}
	return nil
}

// TestConnection probes the server without failing
func (s *Source) TestConnection(ctx context.Context) *core.ConnectorHealth {
	return s.Health(ctx, func(ctx context.Context) (string, error) {
		db, err := s.getDB("TestConnection")
		if err != nil {
			return "", err
		}
		return s.probe(ctx, db)
	})
}

func (s *Source) getDB(operation string) (*sql.DB, error) {
	if err := s.EnsureConnected(operation); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, s.EnsureConnected(operation)
	}
	return s.db, nil
}

// splitTable resolves "schema.table" against the configured default schema
func (s *Source) splitTable(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return s.schema(), name
}

func (s *Source) schema() string {
	cfg := s.Config()
	return cfg.Option("schema", s.dialect.DefaultSchema)
}

// ListTables returns base tables ordered by name
func (s *Source) ListTables(ctx context.Context) ([]string, error) {
	db, err := s.getDB("ListTables")
	if err != nil {
		return nil, err
	}
	tables, err := s.dialect.Catalog.ListTables(ctx, db, s.schema())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to list tables")
	}
	return tables, nil
}

// GetTableSchema introspects columns, keys and indexes of one table
func (s *Source) GetTableSchema(ctx context.Context, table string) (*core.TableSchema, error) {
	db, err := s.getDB("GetTableSchema")
	if err != nil {
		return nil, err
	}
	schemaName, tableName := s.splitTable(table)

	ts, err := s.dialect.Catalog.TableSchema(ctx, db, schemaName, tableName)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeSchema, "failed to introspect %s", table)
	}
	if len(ts.Columns) == 0 {
		return nil, errors.Newf(errors.ErrorTypeSchema, "table %s not found or has no columns", table)
	}
	ts.TableName = table
	return ts, nil
}

// FetchRows runs a parameterized SELECT built from opts
func (s *Source) FetchRows(ctx context.Context, opts core.FetchOptions) (*core.QueryResult, error) {
	db, err := s.getDB("FetchRows")
	if err != nil {
		return nil, err
	}
	if schema := s.schema(); schema != "" && !strings.Contains(opts.Table, ".") {
		opts.Table = schema + "." + opts.Table
	}

	query, args, err := sqlquery.BuildSelect(s.dialect.SQL, opts)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, db, query, args)
}

// ExecuteQuery runs a raw parameterized statement
func (s *Source) ExecuteQuery(ctx context.Context, query string, params []interface{}) (*core.QueryResult, error) {
	db, err := s.getDB("ExecuteQuery")
	if err != nil {
		return nil, err
	}
	return s.query(ctx, db, query, params)
}

func (s *Source) query(ctx context.Context, db *sql.DB, query string, args []interface{}) (*core.QueryResult, error) {
	start := time.Now()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed").WithDetail("query", query)
	}
	defer rows.Close()

	result, err := ScanRows(rows, s.dialect.BinaryTypes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read rows").WithDetail("query", query)
	}
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// ScanRows reads every row into core.Row values keyed by column name.
// Text delivered as []byte becomes string unless the column type is listed in binaryTypes.
func ScanRows(rows *sql.Rows, binaryTypes []string) (*core.QueryResult, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	fields := make([]core.ColumnDefinition, len(columnTypes))
	keepBytes := make([]bool, len(columnTypes))
	for i, ct := range columnTypes {
		nullable, ok := ct.Nullable()
		fields[i] = core.ColumnDefinition{
			Name:     ct.Name(),
			Type:     strings.ToLower(ct.DatabaseTypeName()),
			Nullable: nullable || !ok,
		}
		keepBytes[i] = isBinary(ct.DatabaseTypeName(), binaryTypes)
	}

	result := &core.QueryResult{Fields: fields, Rows: []core.Row{}}
	values := make([]interface{}, len(columnTypes))
	ptrs := make([]interface{}, len(columnTypes))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(core.Row, len(values))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				if keepBytes[i] {
					cp := make([]byte, len(b))
					copy(cp, b)
					row[fields[i].Name] = cp
				} else {
					row[fields[i].Name] = string(b)
				}
				continue
			}
			row[fields[i].Name] = v
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

func isBinary(typeName string, binaryTypes []string) bool {
	for _, t := range binaryTypes {
		if strings.EqualFold(typeName, t) {
			return true
		}
	}
	return false
}
