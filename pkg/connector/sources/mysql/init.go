package mysql

import (
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
)

func init() {
	registry.MustRegister(core.KindMySQL, NewMySQLSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Kind:         core.KindMySQL,
		Description:  "MySQL/MariaDB source over database/sql with information_schema introspection",
		Version:      Version,
		Driver:       "github.com/go-sql-driver/mysql",
		Capabilities: Dialect.Capabilities(),
	})
}
