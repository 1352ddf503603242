package postgresql

import (
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
)

func init() {
	// Register the PostgreSQL source connector
	registry.MustRegister(core.KindPostgreSQL, NewPostgreSQLSource)

	// Register connector metadata
	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Kind:        core.KindPostgreSQL,
		Description: "PostgreSQL source with pgx connection pooling and pg_catalog introspection",
		Version:     Version,
		Driver:      "github.com/jackc/pgx/v5",
		Capabilities: []string{
			core.CapabilityIntrospection,
			core.CapabilityIncremental,
			core.CapabilityRawQuery,
			core.CapabilityForeignKeys,
			core.CapabilityIndexes,
		},
	})
}
