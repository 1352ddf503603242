// Package base provides the BaseConnector that every nebula-hub source adapter
// embeds. It owns the connected flag, the adapter logger, health measurement
// and the default type-driven row coercion.
//
// # Usage
//
//	type MySource struct {
//	    *base.BaseConnector
//	    db *sql.DB
//	}
//
//	func NewMySource(cfg core.ConnectionConfig) *MySource {
//	    return &MySource{BaseConnector: base.NewBaseConnector(core.KindMySQL, "1.0.0", cfg)}
//	}
//
// Data operations call EnsureConnected first so that use before Connect
// fails with a not-connected error instead of touching a nil pool.
package base

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"go.uber.org/zap"
)

// BaseConnector provides common functionality for all connectors
type BaseConnector struct {
	kind         core.Kind
	version      string
	capabilities []string
	config       core.ConnectionConfig
	logger       *zap.Logger

	connected bool
	mu        sync.RWMutex
}

// NewBaseConnector creates a base connector for the given kind.
// The connection config is copied.
func NewBaseConnector(kind core.Kind, version string, cfg core.ConnectionConfig, capabilities ...string) *BaseConnector {
	return &BaseConnector{
		kind:         kind,
		version:      version,
		capabilities: capabilities,
		config:       cfg.Clone(),
		logger: logger.Get().With(
			zap.String("component", "connector"),
			zap.String("kind", string(kind)),
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Database),
		),
	}
}

// Kind returns the connector kind
func (bc *BaseConnector) Kind() core.Kind {
	return bc.kind
}

// Config returns the adapter's copy of the connection config
func (bc *BaseConnector) Config() core.ConnectionConfig {
	return bc.config
}

// GetLogger returns the adapter logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// GetMetadata describes the adapter
func (bc *BaseConnector) GetMetadata() core.ConnectorMetadata {
	caps := make([]string, len(bc.capabilities))
	copy(caps, bc.capabilities)
	return core.ConnectorMetadata{
		Kind:         bc.kind,
		Version:      bc.version,
		Capabilities: caps,
	}
}

// SetConnected records the connection state
func (bc *BaseConnector) SetConnected(connected bool) {
	bc.mu.Lock()
	bc.connected = connected
	bc.mu.Unlock()
}

// IsConnected reports whether Connect has succeeded and Disconnect has not been called
func (bc *BaseConnector) IsConnected() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.connected
}

// EnsureConnected returns a not-connected error naming the operation
func (bc *BaseConnector) EnsureConnected(operation string) error {
	if bc.IsConnected() {
		return nil
	}
	return errors.Newf(errors.ErrorTypeNotConnected, "%s connector is not connected", bc.kind).
		WithDetail("operation", operation)
}

// ConnectError wraps a connect failure as "failed to connect to <kind>"
func (bc *BaseConnector) ConnectError(cause error) error {
	return errors.Wrapf(cause, errors.ErrorTypeConnection, "failed to connect to %s", bc.kind).
		WithDetail("host", bc.config.Host).
		WithDetail("database", bc.config.Database)
}

// TransformRow applies the default declared-type coercion
func (bc *BaseConnector) TransformRow(row core.Row, schema *core.TableSchema) core.Row {
	return CoerceRow(row, schema)
}

// Health runs probe and converts its outcome into a fresh health report.
// probe returns the server version string.
func (bc *BaseConnector) Health(ctx context.Context, probe func(ctx context.Context) (string, error)) *core.ConnectorHealth {
	health := &core.ConnectorHealth{LastCheck: time.Now()}

	if !bc.IsConnected() {
		health.Error = bc.EnsureConnected("TestConnection").Error()
		return health
	}

	start := time.Now()
	version, err := probe(ctx)
	latency := time.Since(start)
	health.LastCheck = time.Now()

	if err != nil {
		bc.logger.Warn("health probe failed", zap.Error(err))
		health.Error = err.Error()
		return health
	}

	health.IsConnected = true
	health.Latency = &latency
	health.Version = version
	return health
}
