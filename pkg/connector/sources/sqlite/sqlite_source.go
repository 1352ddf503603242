// Package sqlite implements the SQLite source adapter on the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"net/url"
	"sort"
	"strings"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sources/sqlsource"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sqlquery"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// Version of the adapter
const Version = "1.0.0"

// Dialect wires SQLite into the shared database/sql adapter. A single
// connection keeps ":memory:" databases consistent across calls.
var Dialect = sqlsource.Dialect{
	Kind:         core.KindSQLite,
	DriverName:   "sqlite",
	Version:      Version,
	SQL:          sqlquery.SQLite,
	DSN:          DSN,
	VersionQuery: "SELECT sqlite_version()",
	Catalog:      catalog{},
	MaxConns:     1,
	BinaryTypes:  []string{"BLOB"},
}

// NewSQLiteSource creates a new, disconnected SQLite adapter. Database holds the file path.
func NewSQLiteSource(cfg core.ConnectionConfig) (core.Connector, error) {
	if cfg.Database == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sqlite database path is required")
	}
	return sqlsource.New(Dialect, cfg), nil
}

// DSN renders a file: URI with a busy timeout and foreign keys enabled.
// Options other than schema are appended as URI parameters.
func DSN(cfg core.ConnectionConfig) (string, error) {
	if cfg.Database == "" {
		return "", errors.New(errors.ErrorTypeConfig, "sqlite database path is required")
	}

	params := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
	}
	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "schema" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(cfg.Options[k]))
	}

	path := strings.TrimPrefix(cfg.Database, "file:")
	return "file:" + path + "?" + strings.Join(params, "&"), nil
}

type catalog struct{}

const queryListTables = `
	SELECT name
	FROM sqlite_master
	WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

const queryColumns = `
	SELECT name, type, "notnull", dflt_value
	FROM pragma_table_info(?)
	ORDER BY cid`

const queryPrimaryKeys = `
	SELECT name
	FROM pragma_table_info(?)
	WHERE pk > 0
	ORDER BY pk`

const queryForeignKeys = `
	SELECT "from", "table", "to"
	FROM pragma_foreign_key_list(?)
	ORDER BY id, seq`

const queryIndexes = `
	SELECT il.name, il."unique", ii.name
	FROM pragma_index_list(?) il
	JOIN pragma_index_info(il.name) ii
	WHERE ii.name IS NOT NULL
	ORDER BY il.name, ii.seqno`

func (catalog) ListTables(ctx context.Context, db *sql.DB, _ string) ([]string, error) {
	return sqlsource.QueryStrings(ctx, db, queryListTables)
}

func (catalog) TableSchema(ctx context.Context, db *sql.DB, _ string, table string) (*core.TableSchema, error) {
	rows, err := db.QueryContext(ctx, queryColumns, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []core.ColumnDefinition
	for rows.Next() {
		var col core.ColumnDefinition
		var notNull bool
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &def); err != nil {
			return nil, err
		}
		col.Type = strings.ToLower(col.Type)
		col.Nullable = !notNull
		if def.Valid {
			d := def.String
			col.Default = &d
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pks, err := sqlsource.QueryStrings(ctx, db, queryPrimaryKeys, table)
	if err != nil {
		return nil, err
	}
	fks, err := sqlsource.QueryForeignKeys(ctx, db, queryForeignKeys, table)
	if err != nil {
		return nil, err
	}
	indexes, err := sqlsource.QueryIndexes(ctx, db, queryIndexes, table)
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
