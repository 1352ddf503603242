package sqlsource

import (
	"context"
	"database/sql"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
)

// QueryStrings collects a single string column
func QueryStrings(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// QueryForeignKeys collects (column, referenced table, referenced column) rows.
// The first reference wins for a column that appears in several constraints.
func QueryForeignKeys(ctx context.Context, db *sql.DB, query string, args ...interface{}) (map[string]core.ForeignKeyRef, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(map[string]core.ForeignKeyRef)
	for rows.Next() {
		var column, table string
		var refColumn sql.NullString
		if err := rows.Scan(&column, &table, &refColumn); err != nil {
			return nil, err
		}
		if _, seen := fks[column]; seen {
			continue
		}
		fks[column] = core.ForeignKeyRef{Table: table, Column: refColumn.String}
	}
	return fks, rows.Err()
}

// QueryIndexes collects (index name, unique, column) rows ordered by index then key position
func QueryIndexes(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]core.IndexDefinition, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []core.IndexDefinition
	for rows.Next() {
		var name, column string
		var unique bool
		if err := rows.Scan(&name, &unique, &column); err != nil {
			return nil, err
		}
		indexes = AppendIndexColumn(indexes, name, unique, column)
	}
	return indexes, rows.Err()
}

// AppendIndexColumn adds column to the last index when names match, else starts a new index
func AppendIndexColumn(indexes []core.IndexDefinition, name string, unique bool, column string) []core.IndexDefinition {
	if n := len(indexes); n > 0 && indexes[n-1].Name == name {
		indexes[n-1].Columns = append(indexes[n-1].Columns, column)
		return indexes
	}
	return append(indexes, core.IndexDefinition{Name: name, Unique: unique, Columns: []string{column}})
}

// ApplyKeys marks primary and foreign key columns
func ApplyKeys(columns []core.ColumnDefinition, pks []string, fks map[string]core.ForeignKeyRef) {
	pkSet := make(map[string]bool, len(pks))
	for _, pk := range pks {
		pkSet[pk] = true
	}
	for i := range columns {
		columns[i].IsPrimaryKey = pkSet[columns[i].Name]
		if ref, ok := fks[columns[i].Name]; ok {
			r := ref
			columns[i].IsForeignKey = true
			columns[i].References = &r
		}
	}
}
