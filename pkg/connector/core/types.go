package core

import (
	"strings"
	"time"
)

// ConnectionConfig holds everything an adapter needs to reach a source.
// Adapters keep their own copy; changing the caller's value after
// creation has no effect.
type ConnectionConfig struct {
	Kind     Kind              `yaml:"kind" json:"kind" mapstructure:"kind"`
	Host     string            `yaml:"host" json:"host" mapstructure:"host"`
	Port     int               `yaml:"port" json:"port" mapstructure:"port"`
	Database string            `yaml:"database" json:"database" mapstructure:"database"`
	Username string            `yaml:"username" json:"username" mapstructure:"username"`
	Password string            `yaml:"password" json:"-" mapstructure:"password"`
	SSL      bool              `yaml:"ssl" json:"ssl" mapstructure:"ssl"`
	Options  map[string]string `yaml:"options" json:"options,omitempty" mapstructure:"options"`
	Pool     PoolSettings      `yaml:"pool" json:"pool" mapstructure:"pool"`
}

// PoolSettings tunes the adapter's connection pool. Zero values select adapter defaults.
type PoolSettings struct {
	MaxConns        int           `yaml:"max_conns" json:"max_conns" mapstructure:"max_conns"`
	MinConns        int           `yaml:"min_conns" json:"min_conns" mapstructure:"min_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout" mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime" mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time" mapstructure:"max_conn_idle_time"`
}

// Clone returns a deep copy of the configuration
func (c ConnectionConfig) Clone() ConnectionConfig {
	out := c
	if c.Options != nil {
		out.Options = make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			out.Options[k] = v
		}
	}
	return out
}

// Option returns the named option or def when unset
func (c ConnectionConfig) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// ForeignKeyRef points at the referenced table and column
type ForeignKeyRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnDefinition describes one column of a table
type ColumnDefinition struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Nullable     bool           `json:"nullable"`
	Default      *string        `json:"default,omitempty"`
	IsPrimaryKey bool           `json:"isPrimaryKey"`
	IsForeignKey bool           `json:"isForeignKey"`
	References   *ForeignKeyRef `json:"references,omitempty"`
}

// IndexDefinition describes a table index
type IndexDefinition struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableSchema is the introspected shape of a table
type TableSchema struct {
	TableName   string             `json:"tableName"`
	Columns     []ColumnDefinition `json:"columns"`
	PrimaryKeys []string           `json:"primaryKeys"`
	Indexes     []IndexDefinition  `json:"indexes,omitempty"`
}

// PrimaryKey returns the first primary key column, or "" when there is none
func (s *TableSchema) PrimaryKey() string {
	if s == nil || len(s.PrimaryKeys) == 0 {
		return ""
	}
	return s.PrimaryKeys[0]
}

// Column looks up a column by name
func (s *TableSchema) Column(name string) (ColumnDefinition, bool) {
	if s == nil {
		return ColumnDefinition{}, false
	}
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// Row is one record keyed by column name
type Row map[string]interface{}

// SortDirection is ASC or DESC
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// Normalize returns the upper-case direction, or "" if it is not a valid direction
func (d SortDirection) Normalize() SortDirection {
	switch SortDirection(strings.ToUpper(strings.TrimSpace(string(d)))) {
	case SortAsc, "":
		return SortAsc
	case SortDesc:
		return SortDesc
	default:
		return ""
	}
}

// OrderBy is one ordering term
type OrderBy struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction"`
}

// FetchOptions selects rows from a single table.
// Where values may be scalars (equality), nil (IS NULL) or slices (IN).
// The incremental filter applies only when both Since and SinceColumn are set.
type FetchOptions struct {
	Table       string
	Columns     []string
	Where       map[string]interface{}
	OrderBy     []OrderBy
	Limit       *int
	Offset      *int
	Since       *time.Time
	SinceColumn string
}

// Incremental reports whether the incremental filter applies
func (o FetchOptions) Incremental() bool {
	return o.Since != nil && o.SinceColumn != ""
}

// QueryResult is the outcome of a fetch or raw query
type QueryResult struct {
	Rows          []Row              `json:"rows"`
	Fields        []ColumnDefinition `json:"fields"`
	RowCount      int                `json:"rowCount"`
	ExecutionTime time.Duration      `json:"-"`
}

// ExecutionTimeMillis returns the execution time in milliseconds
func (r *QueryResult) ExecutionTimeMillis() int64 {
	return r.ExecutionTime.Milliseconds()
}

// ConnectorHealth is a point-in-time health report
type ConnectorHealth struct {
	IsConnected bool           `json:"isConnected"`
	Latency     *time.Duration `json:"latency,omitempty"`
	Version     string         `json:"version,omitempty"`
	LastCheck   time.Time      `json:"lastCheck"`
	Error       string         `json:"error,omitempty"`
}

// IntPtr is a convenience for building FetchOptions limits
func IntPtr(v int) *int {
	return &v
}
