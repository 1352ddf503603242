package core

import (
	"context"
)

// Connector is the uniform contract every source adapter implements.
// An adapter is created disconnected; every data operation requires a
// prior successful Connect.
type Connector interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// TestConnection reports health and never fails: problems are
	// captured in ConnectorHealth.Error.
	TestConnection(ctx context.Context) *ConnectorHealth

	// Introspection
	ListTables(ctx context.Context) ([]string, error)
	GetTableSchema(ctx context.Context, table string) (*TableSchema, error)

	// Data access
	FetchRows(ctx context.Context, opts FetchOptions) (*QueryResult, error)
	TransformRow(row Row, schema *TableSchema) Row

	// Metadata
	Kind() Kind
	GetMetadata() ConnectorMetadata
}

// QueryExecutor is implemented by connectors that accept raw parameterized queries.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, params []interface{}) (*QueryResult, error)
}

// Capabilities advertised in ConnectorMetadata.
const (
	CapabilityIntrospection = "schema_introspection"
	CapabilityIncremental   = "incremental_sync"
	CapabilityRawQuery      = "raw_query"
	CapabilityForeignKeys   = "foreign_keys"
	CapabilityIndexes       = "indexes"
)

// ConnectorMetadata describes an adapter implementation
type ConnectorMetadata struct {
	Kind         Kind     `json:"kind"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HasCapability reports whether the capability tag is advertised
func (m ConnectorMetadata) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
