// Package mysql implements the MySQL/MariaDB source adapter on go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sources/sqlsource"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sqlquery"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// Version of the adapter
const Version = "1.0.0"

// Dialect wires MySQL into the shared database/sql adapter
var Dialect = sqlsource.Dialect{
	Kind:         core.KindMySQL,
	DriverName:   "mysql",
	Version:      Version,
	SQL:          sqlquery.MySQL,
	DSN:          DSN,
	VersionQuery: "SELECT VERSION()",
	Catalog:      catalog{},
	BinaryTypes:  []string{"BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY"},
}

// NewMySQLSource creates a new, disconnected MySQL adapter
func NewMySQLSource(cfg core.ConnectionConfig) (core.Connector, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql host is required")
	}
	return sqlsource.New(Dialect, cfg), nil
}

// DSN renders a go-sql-driver DSN. parseTime is always on so DATETIME
// columns arrive as time.Time. Remaining options become driver params.
func DSN(cfg core.ConnectionConfig) (string, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + strconv.Itoa(port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	if cfg.SSL {
		mc.TLSConfig = "true"
	}
	if cfg.Pool.ConnectTimeout > 0 {
		mc.Timeout = cfg.Pool.ConnectTimeout
	}
	for k, v := range cfg.Options {
		if k == "schema" {
			continue
		}
		if mc.Params == nil {
			mc.Params = make(map[string]string)
		}
		mc.Params[k] = v
	}
	return mc.FormatDSN(), nil
}

type catalog struct{}

const queryListTables = `
	SELECT TABLE_NAME
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

const queryColumns = `
	SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION`

const queryPrimaryKeys = `
	SELECT COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
	ORDER BY ORDINAL_POSITION`

const queryForeignKeys = `
	SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		AND REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`

const queryIndexes = `
	SELECT INDEX_NAME, NON_UNIQUE = 0, COLUMN_NAME
	FROM information_schema.STATISTICS
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
	ORDER BY INDEX_NAME, SEQ_IN_INDEX`

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
