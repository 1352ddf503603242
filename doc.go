// Package nebulahub is the data integration core behind the nebula-hub
// service. It connects to heterogeneous relational sources, introspects
// their schemas, pulls rows and normalizes each row into a uniform
// searchable document.
//
// # Architecture
//
// A sync flows through four layers:
//
//  1. Source adapters (pkg/connector) implement one contract per database
//     engine and are created by kind through the connector registry.
//
//  2. The normalizer (pkg/normalizer) turns a row into a NormalizedDocument,
//     applying per-table field mappings when present and naming heuristics
//     otherwise.
//
//  3. The sync orchestrator (pkg/orchestrator) owns registered sources and
//     runs table and system syncs, collecting per-table errors into a
//     success, partial or failed result.
//
//  4. The job queue (pkg/queue) runs syncs, indexing and embedding as
//     retryable asynq jobs on Redis. When Redis is unreachable the service
//     layer (pkg/service) runs syncs synchronously instead.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
//	    _ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources"
//	    "github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
//	)
//
//	orch := orchestrator.New(registry.GetRegistry(), nil, nil, nil)
//	defer orch.Close(ctx)
//
//	if err := orch.RegisterSystem(ctx, "crm", core.ConnectionConfig{
//	    Kind:     core.KindPostgreSQL,
//	    Host:     "localhost",
//	    Database: "crm",
//	}); err != nil {
//	    return err
//	}
//	result, err := orch.SyncSystem(ctx, "crm", orchestrator.SyncOptions{})
//
// # Key Packages
//
//	pkg/connector     - Connector contract, registry and source adapters
//	pkg/normalizer    - Row to document normalization
//	pkg/orchestrator  - Source registration and sync execution
//	pkg/queue         - Background jobs with synchronous fallback
//	pkg/service       - Boundary used by the CLI and route layers
//	pkg/config        - Viper-backed configuration
//	pkg/errors        - Typed errors
//	pkg/logger        - Global zap logger
//	pkg/metrics       - Prometheus collectors
//	pkg/observability - OpenTelemetry tracing
//
// The nebula-hub command in cmd/nebula-hub runs the workers and exposes
// one-shot sync and introspection commands.
package nebulahub
