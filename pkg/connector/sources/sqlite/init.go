package sqlite

import (
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
)

func init() {
	registry.MustRegister(core.KindSQLite, NewSQLiteSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Kind:         core.KindSQLite,
		Description:  "SQLite file source over the pure Go modernc driver with pragma introspection",
		Version:      Version,
		Driver:       "modernc.org/sqlite",
		Capabilities: Dialect.Capabilities(),
	})
}
