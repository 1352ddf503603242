// Package postgresql implements the PostgreSQL source adapter on pgx.
package postgresql

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/base"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sqlquery"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

const (
	// Version of the adapter
	Version = "1.0.0"

	defaultSchema = "public"
)

// PostgreSQLSource implements core.Connector for PostgreSQL
type PostgreSQLSource struct {
	*base.BaseConnector

	pool *pgxpool.Pool
	mu   sync.RWMutex
}

var (
	_ core.Connector     = (*PostgreSQLSource)(nil)
	_ core.QueryExecutor = (*PostgreSQLSource)(nil)
)

// NewPostgreSQLSource creates a new, disconnected PostgreSQL adapter
func NewPostgreSQLSource(cfg core.ConnectionConfig) (core.Connector, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgresql host is required")
	}
	return &PostgreSQLSource{
		BaseConnector: base.NewBaseConnector(core.KindPostgreSQL, Version, cfg,
			core.CapabilityIntrospection,
			core.CapabilityIncremental,
			core.CapabilityRawQuery,
			core.CapabilityForeignKeys,
			core.CapabilityIndexes,
		),
	}, nil
}

// ConnectionString renders the pgx connection URL for cfg.
// Every option except "schema" is passed through as a query parameter.
func ConnectionString(cfg core.ConnectionConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	params := url.Values{}
	if cfg.SSL {
		params.Set("sslmode", "require")
	} else {
		params.Set("sslmode", "disable")
	}
	for k, v := range cfg.Options {
		if k == "schema" {
			continue
		}
		params.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     cfg.Host + ":" + strconv.Itoa(port),
		Path:     "/" + cfg.Database,
		RawQuery: params.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

// Connect creates the pool and probes it before marking the adapter connected
func (s *PostgreSQLSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.SetConnected(false)

	poolConfig, err := s.poolConfig()
	if err != nil {
		return s.ConnectError(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return s.ConnectError(err)
	}

	version, err := validateConnection(ctx, pool)
	if err != nil {
		pool.Close()
		return s.ConnectError(err)
	}

	s.pool = pool
	s.SetConnected(true)

	s.GetLogger().Info("connected to postgresql",
		zap.String("version", version),
		zap.Int32("max_connections", poolConfig.MaxConns),
		zap.Int32("min_connections", poolConfig.MinConns),
		zap.Duration("idle_timeout", poolConfig.MaxConnIdleTime))
	return nil
}

func (s *PostgreSQLSource) poolConfig() (*pgxpool.Config, error) {
	cfg := s.Config()
	poolConfig, err := pgxpool.ParseConfig(ConnectionString(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}

	poolConfig.MaxConns = int32(cfg.Pool.MaxConns)
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = int32(cfg.Pool.MinConns)
	if poolConfig.MinConns > poolConfig.MaxConns {
		poolConfig.MinConns = poolConfig.MaxConns / 2
	}

	poolConfig.MaxConnLifetime = cfg.Pool.MaxConnLifetime
	if poolConfig.MaxConnLifetime <= 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}
	poolConfig.MaxConnIdleTime = cfg.Pool.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime <= 0 {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second

	poolConfig.ConnConfig.ConnectTimeout = cfg.Pool.ConnectTimeout
	if poolConfig.ConnConfig.ConnectTimeout <= 0 {
		poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second
	}
	return poolConfig, nil
}

// validateConnection runs a round trip and returns the server version
func validateConnection(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to acquire connection for validation")
	}
	defer conn.Release()

	var result int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeQuery, "validation query failed")
	}

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeQuery, "failed to get server version")
	}
	return version, nil
}

// Disconnect closes the pool
func (s *PostgreSQLSource) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.SetConnected(false)
	s.GetLogger().Info("postgresql source disconnected")
	return nil
}

// TestConnection probes the server without failing
func (s *PostgreSQLSource) TestConnection(ctx context.Context) *core.ConnectorHealth {
	return s.Health(ctx, func(ctx context.Context) (string, error) {
		pool, err := s.getPool("TestConnection")
		if err != nil {
			return "", err
		}
		return validateConnection(ctx, pool)
	})
}

func (s *PostgreSQLSource) getPool(operation string) (*pgxpool.Pool, error) {
	if err := s.EnsureConnected(operation); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, s.EnsureConnected(operation)
	}
	return s.pool, nil
}

// splitTable resolves "schema.table" against the configured default schema
func (s *PostgreSQLSource) splitTable(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return s.Config().Option("schema", defaultSchema), name
}

// ListTables returns base tables of the configured schema ordered by name
func (s *PostgreSQLSource) ListTables(ctx context.Context) ([]string, error) {
	pool, err := s.getPool("ListTables")
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, queryListTables, s.Config().Option("schema", defaultSchema))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to list tables")
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to read table list")
	}
	return tables, nil
}

// GetTableSchema introspects columns, keys and indexes of one table
func (s *PostgreSQLSource) GetTableSchema(ctx context.Context, table string) (*core.TableSchema, error) {
	pool, err := s.getPool("GetTableSchema")
	if err != nil {
		return nil, err
	}
	schemaName, tableName := s.splitTable(table)

	columns, err := s.loadColumns(ctx, pool, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.Newf(errors.ErrorTypeSchema, "table %s not found or has no columns", table)
	}

	pks, err := s.loadPrimaryKeys(ctx, pool, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	fks, err := s.loadForeignKeys(ctx, pool, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	indexes, err := s.loadIndexes(ctx, pool, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	pkSet := make(map[string]bool, len(pks))
	for _, pk := range pks {
		pkSet[pk] = true
	}
	for i := range columns {
		columns[i].IsPrimaryKey = pkSet[columns[i].Name]
		if ref, ok := fks[columns[i].Name]; ok {
			columns[i].IsForeignKey = true
			r := ref
			columns[i].References = &r
		}
	}

	return &core.TableSchema{
		TableName:   table,
		Columns:     columns,
		PrimaryKeys: pks,
		Indexes:     indexes,
	}, nil
}

func (s *PostgreSQLSource) loadColumns(ctx context.Context, pool *pgxpool.Pool, schemaName, tableName string) ([]core.ColumnDefinition, error) {
	rows, err := pool.Query(ctx, queryColumns, schemaName, tableName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to query columns")
	}
	defer rows.Close()

	var columns []core.ColumnDefinition
	for rows.Next() {
		var col core.ColumnDefinition
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to scan column")
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "error iterating columns")
	}
	return columns, nil
}

func (s *PostgreSQLSource) loadPrimaryKeys(ctx context.Context, pool *pgxpool.Pool, schemaName, tableName string) ([]string, error) {
	rows, err := pool.Query(ctx, queryPrimaryKeys, schemaName, tableName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to query primary keys")
	}
	pks, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to read primary keys")
	}
	if pks == nil {
		pks = []string{}
	}
	return pks, nil
}

func (s *PostgreSQLSource) loadForeignKeys(ctx context.Context, pool *pgxpool.Pool, schemaName, tableName string) (map[string]core.ForeignKeyRef, error) {
	rows, err := pool.Query(ctx, queryForeignKeys, schemaName, tableName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to query foreign keys")
	}
	defer rows.Close()

	fks := make(map[string]core.ForeignKeyRef)
	for rows.Next() {
		var column string
		var ref core.ForeignKeyRef
		if err := rows.Scan(&column, &ref.Table, &ref.Column); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to scan foreign key")
		}
		if _, seen := fks[column]; !seen {
			fks[column] = ref
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "error iterating foreign keys")
	}
	return fks, nil
}

func (s *PostgreSQLSource) loadIndexes(ctx context.Context, pool *pgxpool.Pool, schemaName, tableName string) ([]core.IndexDefinition, error) {
	rows, err := pool.Query(ctx, queryIndexes, schemaName, tableName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to query indexes")
	}
	defer rows.Close()

	var indexes []core.IndexDefinition
	for rows.Next() {
		var name, column string
		var unique bool
		if err := rows.Scan(&name, &unique, &column); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to scan index")
		}
		if n := len(indexes); n > 0 && indexes[n-1].Name == name {
			indexes[n-1].Columns = append(indexes[n-1].Columns, column)
			continue
		}
		indexes = append(indexes, core.IndexDefinition{Name: name, Unique: unique, Columns: []string{column}})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "error iterating indexes")
	}
	return indexes, nil
}

// FetchRows runs a parameterized SELECT built from opts
func (s *PostgreSQLSource) FetchRows(ctx context.Context, opts core.FetchOptions) (*core.QueryResult, error) {
	pool, err := s.getPool("FetchRows")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(opts.Table, ".") {
		opts.Table = s.Config().Option("schema", defaultSchema) + "." + opts.Table
	}

	query, args, err := sqlquery.BuildSelect(sqlquery.Postgres, opts)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, pool, query, args)
}

// ExecuteQuery runs a raw parameterized statement
func (s *PostgreSQLSource) ExecuteQuery(ctx context.Context, query string, params []interface{}) (*core.QueryResult, error) {
	pool, err := s.getPool("ExecuteQuery")
	if err != nil {
		return nil, err
	}
	return s.query(ctx, pool, query, params)
}

func (s *PostgreSQLSource) query(ctx context.Context, pool *pgxpool.Pool, query string, args []interface{}) (*core.QueryResult, error) {
	start := time.Now()

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed").WithDetail("query", query)
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	fields := make([]core.ColumnDefinition, len(descriptions))
	typeMap := rows.Conn().TypeMap()
	for i, fd := range descriptions {
		fields[i] = core.ColumnDefinition{Name: fd.Name, Type: typeName(typeMap, fd.DataTypeOID), Nullable: true}
	}

	result := &core.QueryResult{Fields: fields, Rows: []core.Row{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to get row values")
		}
		row := make(core.Row, len(values))
		for i, v := range values {
			row[descriptions[i].Name] = convertValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "error iterating rows").WithDetail("query", query)
	}

	result.RowCount = len(result.Rows)
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return t.Name
	}
	return fmt.Sprintf("oid:%d", oid)
}

// convertValue maps pgx decoded values onto plain Go values
func convertValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return value
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(v).String()
	default:
		return v
	}
}
