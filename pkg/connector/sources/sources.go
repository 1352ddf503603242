// Package sources links every built-in source adapter into the binary.
// Importing it triggers each adapter's init() registration with the
// global connector registry.
package sources

import (
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"

	// Import all source connectors to trigger init() registration
	_ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources/mssql"
	_ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources/mysql"
	_ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources/postgresql"
	_ "github.com/ajitpratap0/nebula-hub/pkg/connector/sources/sqlite"
)

// Implemented returns the kinds with a registered adapter
func Implemented() []core.Kind {
	return registry.GetRegistry().Kinds()
}
