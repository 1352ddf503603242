package mssql

import (
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
)

func init() {
	registry.MustRegister(core.KindMSSQL, NewMSSQLSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Kind:         core.KindMSSQL,
		Description:  "Microsoft SQL Server source over database/sql with sys catalog introspection",
		Version:      Version,
		Driver:       "github.com/microsoft/go-mssqldb",
		Capabilities: Dialect.Capabilities(),
	})
}
