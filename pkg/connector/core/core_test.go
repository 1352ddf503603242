package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindIsKnown(t *testing.T) {
	for _, k := range AllKinds() {
		assert.True(t, k.IsKnown(), k)
	}
	assert.False(t, Kind("csv").IsKnown())
	assert.False(t, Kind("").IsKnown())
}

func TestAllKindsIsACopy(t *testing.T) {
	kinds := AllKinds()
	kinds[0] = "mutated"
	assert.Equal(t, KindPostgreSQL, AllKinds()[0])
}

func TestConnectionConfigClone(t *testing.T) {
	cfg := ConnectionConfig{Kind: KindMySQL, Options: map[string]string{"charset": "utf8mb4"}}
	clone := cfg.Clone()
	cfg.Options["charset"] = "latin1"

	assert.Equal(t, "utf8mb4", clone.Options["charset"])
	assert.Equal(t, "utf8mb4", clone.Option("charset", "x"))
	assert.Equal(t, "public", clone.Option("schema", "public"))
}

func TestSortDirectionNormalize(t *testing.T) {
	assert.Equal(t, SortAsc, SortDirection("").Normalize())
	assert.Equal(t, SortAsc, SortDirection("asc").Normalize())
	assert.Equal(t, SortDesc, SortDirection(" desc ").Normalize())
	assert.Equal(t, SortDirection(""), SortDirection("; DROP").Normalize())
}

func TestFetchOptionsIncremental(t *testing.T) {
	now := time.Now()
	assert.False(t, FetchOptions{Since: &now}.Incremental())
	assert.False(t, FetchOptions{SinceColumn: "updated_at"}.Incremental())
	assert.True(t, FetchOptions{Since: &now, SinceColumn: "updated_at"}.Incremental())
}

func TestTableSchemaHelpers(t *testing.T) {
	var nilSchema *TableSchema
	assert.Equal(t, "", nilSchema.PrimaryKey())

	s := &TableSchema{
		TableName:   "orders",
		Columns:     []ColumnDefinition{{Name: "order_no", Type: "int"}},
		PrimaryKeys: []string{"order_no"},
	}
	assert.Equal(t, "order_no", s.PrimaryKey())
	col, ok := s.Column("order_no")
	assert.True(t, ok)
	assert.Equal(t, "int", col.Type)
	_, ok = s.Column("missing")
	assert.False(t, ok)
}

func TestMetadataHasCapability(t *testing.T) {
	m := ConnectorMetadata{Kind: KindSQLite, Capabilities: []string{CapabilityRawQuery}}
	assert.True(t, m.HasCapability(CapabilityRawQuery))
	assert.False(t, m.HasCapability(CapabilityIncremental))
}
