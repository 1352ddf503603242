// Package orchestrator owns the registry of connected source systems and
// drives table and system syncs through the normalizer.
//
// # Overview
//
// An Orchestrator maps a system id to a connected adapter. Registration
// creates the adapter through a registry.Factory, connects it and runs a
// health check; only healthy adapters are retained. Syncs fetch up to
// BatchSize rows per table, coerce them with the adapter's TransformRow and
// normalize them into documents.
//
// # Basic Usage
//
//	orch := orchestrator.New(registry.GetRegistry(), normalizer.New(), nil, logger)
//	defer orch.Close(ctx)
//
//	if err := orch.RegisterSystem(ctx, "crm", cfg); err != nil {
//	    return err
//	}
//	result, err := orch.SyncSystem(ctx, "crm", orchestrator.SyncOptions{})
//
// A table failure never aborts a system sync: it is recorded in
// SyncJobResult.Errors and the remaining tables still run.
package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"github.com/ajitpratap0/nebula-hub/pkg/metrics"
	"github.com/ajitpratap0/nebula-hub/pkg/normalizer"
)

// Orchestrator holds the connected systems of one process
type Orchestrator struct {
	factory    registry.Factory
	normalizer *normalizer.Normalizer
	sink       DocumentSink
	batchSize  int
	logger     *zap.Logger

	mu      sync.RWMutex
	systems map[string]core.Connector

	// locks serialize register and unregister of the same id; an entry
	// lives only while some caller holds or waits for it
	locksMu sync.Mutex
	locks   map[string]*idLock

	now func() time.Time
}

// New creates an orchestrator. A nil factory selects the global connector
// registry, a nil normalizer a fresh one and a nil config DefaultConfig.
func New(factory registry.Factory, norm *normalizer.Normalizer, config *Config, log *zap.Logger) *Orchestrator {
	if factory == nil {
		factory = registry.GetRegistry()
	}
	if norm == nil {
		norm = normalizer.New()
	}
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Get()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Orchestrator{
		factory:    factory,
		normalizer: norm,
		batchSize:  batchSize,
		logger:     log.With(zap.String("component", "orchestrator")),
		systems:    make(map[string]core.Connector),
		locks:      make(map[string]*idLock),
		now:        time.Now,
	}
}

// SetDocumentSink installs the store that receives normalized documents.
// A sink failure fails the table it was called for.
func (o *Orchestrator) SetDocumentSink(sink DocumentSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = sink
}

// Normalizer returns the normalizer used for syncs
func (o *Orchestrator) Normalizer() *normalizer.Normalizer {
	return o.normalizer
}

// BatchSize returns the per-table row ceiling
func (o *Orchestrator) BatchSize() int {
	return o.batchSize
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the per-id lock and returns its release func
func (o *Orchestrator) lock(id string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &idLock{}
		o.locks[id] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, id)
		}
		o.locksMu.Unlock()
	}
}

// RegisterSystem creates, connects and health-checks an adapter for cfg and
// stores it under id. An adapter that fails any step is disconnected and
// discarded. Registering an existing id replaces the previous adapter once
// the new one is healthy.
func (o *Orchestrator) RegisterSystem(ctx context.Context, id string, cfg core.ConnectionConfig) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.ErrorTypeValidation, "system id is required")
	}

	defer o.lock(id)()

	log := o.logger.With(zap.String("system_id", id), zap.String("kind", string(cfg.Kind)))

	conn, err := o.factory.Create(cfg)
	if err != nil {
		log.Warn("failed to create connector", zap.Error(err))
		return err
	}

	start := time.Now()
	err = conn.Connect(ctx)
	metrics.ObserveConnector(string(cfg.Kind), "connect", time.Since(start))
	if err != nil {
		log.Warn("failed to connect system", zap.Error(err))
		if !errors.IsType(err, errors.ErrorTypeConnection) {
			err = errors.Wrapf(err, errors.ErrorTypeConnection, "failed to connect system %s", id)
		}
		return err
	}

	health := conn.TestConnection(ctx)
	if health == nil || !health.IsConnected {
		_ = conn.Disconnect(ctx)
		reason := "no health report"
		if health != nil && health.Error != "" {
			reason = health.Error
		}
		log.Warn("health check failed, discarding connector", zap.String("reason", reason))
		return errors.Newf(errors.ErrorTypeConnection, "health check failed for system %s: %s", id, reason).
			WithDetail("system_id", id)
	}

	o.mu.Lock()
	prev := o.systems[id]
	o.systems[id] = conn
	count := len(o.systems)
	o.mu.Unlock()
	metrics.RegisteredSystems.Set(float64(count))

	if prev != nil {
		if err := prev.Disconnect(ctx); err != nil {
			log.Warn("failed to disconnect replaced connector", zap.Error(err))
		}
	}

	log.Info("system registered", zap.String("version", health.Version), zap.Bool("replaced", prev != nil))
	return nil
}

// UnregisterSystem disconnects and removes a system. Unknown ids are a no-op.
func (o *Orchestrator) UnregisterSystem(ctx context.Context, id string) error {
	defer o.lock(id)()

	o.mu.Lock()
	conn, ok := o.systems[id]
	delete(o.systems, id)
	count := len(o.systems)
	o.mu.Unlock()

	if !ok {
		return nil
	}
	metrics.RegisteredSystems.Set(float64(count))

	if err := conn.Disconnect(ctx); err != nil {
		o.logger.Warn("failed to disconnect system", zap.String("system_id", id), zap.Error(err))
		return err
	}
	o.logger.Info("system unregistered", zap.String("system_id", id))
	return nil
}

// ListSystems returns the registered ids in lexical order
func (o *Orchestrator) ListSystems() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.systems))
	for id := range o.systems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connector returns the adapter registered under id
func (o *Orchestrator) Connector(id string) (core.Connector, error) {
	o.mu.RLock()
	conn, ok := o.systems[id]
	o.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSystemNotFound, "system %s not found", id).
			WithDetail("system_id", id)
	}
	return conn, nil
}

// TestConnection runs a health check against a registered system
func (o *Orchestrator) TestConnection(ctx context.Context, id string) (*core.ConnectorHealth, error) {
	conn, err := o.Connector(id)
	if err != nil {
		return nil, err
	}
	return conn.TestConnection(ctx), nil
}

// ListTables lists the tables of a registered system
func (o *Orchestrator) ListTables(ctx context.Context, id string) ([]string, error) {
	conn, err := o.Connector(id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	tables, err := conn.ListTables(ctx)
	metrics.ObserveConnector(string(conn.Kind()), "list_tables", time.Since(start))
	return tables, err
}

// GetTableSchema introspects one table of a registered system
func (o *Orchestrator) GetTableSchema(ctx context.Context, id, table string) (*core.TableSchema, error) {
	conn, err := o.Connector(id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	schema, err := conn.GetTableSchema(ctx, table)
	metrics.ObserveConnector(string(conn.Kind()), "schema", time.Since(start))
	return schema, err
}

// ExecuteQuery runs a raw parameterized query when the adapter supports it
func (o *Orchestrator) ExecuteQuery(ctx context.Context, id, query string, params []interface{}) (*core.QueryResult, error) {
	conn, err := o.Connector(id)
	if err != nil {
		return nil, err
	}
	qe, ok := conn.(core.QueryExecutor)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeCapability, "%s connector does not support raw queries", conn.Kind()).
			WithDetail("system_id", id)
	}
	start := time.Now()
	result, err := qe.ExecuteQuery(ctx, query, params)
	metrics.ObserveConnector(string(conn.Kind()), "query", time.Since(start))
	return result, err
}

// Close unregisters every system
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	for _, id := range o.ListSystems() {
		if err := o.UnregisterSystem(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
