// Package sqlquery builds parameterized SELECT statements for the SQL source adapters.
// Values are always bound; only quoted identifiers are written into the SQL text.
package sqlquery

import (
	"strconv"
	"strings"
	"time"
)

// PaginationStyle selects how LIMIT/OFFSET is rendered
type PaginationStyle int

const (
	// LimitOffset renders LIMIT n OFFSET m
	LimitOffset PaginationStyle = iota
	// OffsetFetch renders OFFSET m ROWS FETCH NEXT n ROWS ONLY (SQL Server)
	OffsetFetch
)

// Dialect captures the syntax differences between SQL sources
type Dialect struct {
	Name        string
	Placeholder func(index int) string
	QuoteOpen   string
	QuoteClose  string
	Pagination  PaginationStyle
	// UnboundedLimit is written when an offset is given without a limit
	UnboundedLimit string
	// Watermark renders the incremental condition for an already quoted
	// column and returns the value to bind. Nil compares the column
	// directly against the bound time.
	Watermark func(column, placeholder string, since time.Time) (string, interface{})
}

// QuoteIdentifier quotes a single identifier, doubling embedded closing quotes
func (d Dialect) QuoteIdentifier(name string) string {
	return d.QuoteOpen + strings.ReplaceAll(name, d.QuoteClose, d.QuoteClose+d.QuoteClose) + d.QuoteClose
}

// QualifiedName quotes a possibly schema-qualified name such as "sales.orders"
func (d Dialect) QualifiedName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Column quotes a column name. Dots are part of the name, never a qualifier.
func (d Dialect) Column(name string) string {
	return d.QuoteIdentifier(name)
}

// ColumnList quotes and joins columns
func (d Dialect) ColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Column(c)
	}
	return strings.Join(quoted, ", ")
}

var (
	// Postgres uses $n placeholders and double-quoted identifiers
	Postgres = Dialect{
		Name:           "postgresql",
		Placeholder:    func(i int) string { return "$" + strconv.Itoa(i) },
		QuoteOpen:      `"`,
		QuoteClose:     `"`,
		Pagination:     LimitOffset,
		UnboundedLimit: "ALL",
	}

	// MySQL uses ? placeholders and backtick identifiers
	MySQL = Dialect{
		Name:           "mysql",
		Placeholder:    func(int) string { return "?" },
		QuoteOpen:      "`",
		QuoteClose:     "`",
		Pagination:     LimitOffset,
		UnboundedLimit: "18446744073709551615",
	}

	// SQLServer uses @pN placeholders and bracketed identifiers
	SQLServer = Dialect{
		Name:        "mssql",
		Placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
		QuoteOpen:   "[",
		QuoteClose:  "]",
		Pagination:  OffsetFetch,
	}

	// SQLite uses ? placeholders and double-quoted identifiers
	SQLite = Dialect{
		Name:           "sqlite",
		Placeholder:    func(int) string { return "?" },
		QuoteOpen:      `"`,
		QuoteClose:     `"`,
		Pagination:     LimitOffset,
		UnboundedLimit: "-1",
		Watermark:      sqliteWatermark,
	}
)

// sqliteTimeLayout matches strftime('%Y-%m-%d %H:%M:%f')
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// sqliteWatermark compares normalized UTC text, since SQLite stores
// DATETIME values as strings in whatever layout they were written with
func sqliteWatermark(column, placeholder string, since time.Time) (string, interface{}) {
	return "strftime('%Y-%m-%d %H:%M:%f', " + column + ") > " + placeholder,
		since.UTC().Format(sqliteTimeLayout)
}
