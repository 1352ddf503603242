// Package mssql implements the SQL Server source adapter on microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	// registers the "sqlserver" driver
	_ "github.com/microsoft/go-mssqldb"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sources/sqlsource"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sqlquery"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// Version of the adapter
const Version = "1.0.0"

// Dialect wires SQL Server into the shared database/sql adapter
var Dialect = sqlsource.Dialect{
	Kind:          core.KindMSSQL,
	DriverName:    "sqlserver",
	Version:       Version,
	SQL:           sqlquery.SQLServer,
	DSN:           DSN,
	VersionQuery:  "SELECT @@VERSION",
	Catalog:       catalog{},
	DefaultSchema: "dbo",
	BinaryTypes:   []string{"BINARY", "VARBINARY", "IMAGE", "TIMESTAMP", "ROWVERSION"},
}

// NewMSSQLSource creates a new, disconnected SQL Server adapter
func NewMSSQLSource(cfg core.ConnectionConfig) (core.Connector, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mssql host is required")
	}
	return sqlsource.New(Dialect, cfg), nil
}

// DSN renders a sqlserver:// URL. Encryption follows cfg.SSL and every option
// other than schema is passed through as a query parameter.
func DSN(cfg core.ConnectionConfig) (string, error) {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}

	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	if cfg.SSL {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	if cfg.Pool.ConnectTimeout > 0 {
		q.Set("dial timeout", strconv.Itoa(int(cfg.Pool.ConnectTimeout.Seconds())))
	}
	for k, v := range cfg.Options {
		if k == "schema" {
			continue
		}
		q.Set(k, v)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String(), nil
}

type catalog struct{}

const queryListTables = `
	SELECT TABLE_NAME
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

const queryColumns = `
	SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
	ORDER BY ORDINAL_POSITION`

const queryPrimaryKeys = `
	SELECT kcu.COLUMN_NAME
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
	WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		AND tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2
	ORDER BY kcu.ORDINAL_POSITION`

const queryForeignKeys = `
	SELECT pc.name, rt.name, rc.name
	FROM sys.foreign_key_columns fkc
	JOIN sys.tables pt ON pt.object_id = fkc.parent_object_id
	JOIN sys.schemas s ON s.schema_id = pt.schema_id
	JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
	JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE s.name = @p1 AND pt.name = @p2
	ORDER BY fkc.constraint_object_id, fkc.constraint_column_id`

const queryIndexes = `
	SELECT i.name, i.is_unique, c.name
	FROM sys.indexes i
	JOIN sys.tables t ON t.object_id = i.object_id
	JOIN sys.schemas s ON s.schema_id = t.schema_id
	JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE s.name = @p1 AND t.name = @p2
		AND i.name IS NOT NULL
		AND ic.is_included_column = 0
	ORDER BY i.name, ic.key_ordinal`

func (catalog) ListTables(ctx context.Context, db *sql.DB, schema string) ([]string, error) {
	return sqlsource.QueryStrings(ctx, db, queryListTables, schema)
}

func (catalog) TableSchema(ctx context.Context, db *sql.DB, schema, table string) (*core.TableSchema, error) {
	rows, err := db.QueryContext(ctx, queryColumns, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []core.ColumnDefinition
	for rows.Next() {
		var col core.ColumnDefinition
		var nullable string
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			d := def.String
			col.Default = &d
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pks, err := sqlsource.QueryStrings(ctx, db, queryPrimaryKeys, schema, table)
	if err != nil {
		return nil, err
	}
	fks, err := sqlsource.QueryForeignKeys(ctx, db, queryForeignKeys, schema, table)
	if err != nil {
		return nil, err
	}
	indexes, err := sqlsource.QueryIndexes(ctx, db, queryIndexes, schema, table)
	if err != nil {
		return nil, err
	}

	sqlsource.ApplyKeys(columns, pks, fks)
	return &core.TableSchema{
		TableName:   table,
		Columns:     columns,
		PrimaryKeys: pks,
		Indexes:     indexes,
	}, nil
}
