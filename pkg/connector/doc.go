// Package connector groups the source adapter framework of nebula-hub.
//
// # Architecture Overview
//
// The connector tree is organized into several sub-packages:
//
//   - core: the Connector contract every adapter implements (connect,
//     health check, table listing, schema introspection, filtered row
//     fetches and type coercion), the optional QueryExecutor capability and
//     the closed Kind enumeration.
//
//   - base: BaseConnector, embedded by every adapter. It tracks connection
//     state, produces typed not-connected errors and implements the default
//     per-column type coercion.
//
//   - sqlquery: the dialect-aware SELECT builder shared by the SQL adapters.
//     Identifiers are quoted, values are always bound as parameters.
//
//   - sources: adapters for PostgreSQL (pgx), MySQL (go-sql-driver),
//     SQL Server (go-mssqldb) and SQLite (modernc). Importing the sources
//     package links all of them in.
//
//   - registry: maps a Kind to the adapter constructor. Adapters register
//     themselves from init(); kinds without an adapter fail with an
//     unsupported-kind error.
//
//   - connectortest: an in-memory adapter for tests of code that consumes
//     core.Connector.
//
// # Basic Usage
//
//	import _ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources"
//
//	src, err := registry.Create(core.ConnectionConfig{
//	    Kind:     core.KindPostgreSQL,
//	    Host:     "localhost",
//	    Port:     5432,
//	    Database: "crm",
//	    Username: "reader",
//	    Password: os.Getenv("CRM_PASSWORD"),
//	})
//	if err != nil {
//	    return err
//	}
//	if err := src.Connect(ctx); err != nil {
//	    return err
//	}
//	defer src.Disconnect(ctx)
//
//	schema, _ := src.GetTableSchema(ctx, "customers")
//	result, _ := src.FetchRows(ctx, core.FetchOptions{Table: "customers", Limit: core.IntPtr(100)})
//	for _, row := range result.Rows {
//	    row = src.TransformRow(row, schema)
//	}
package connector
