// Package registry maps connector kinds to adapter constructors and acts as the
// connector factory. Adapters register themselves from init(); import
// pkg/connector/sources to link every adapter into a binary.
package registry

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"go.uber.org/zap"
)

// Constructor creates a new, not yet connected adapter
type Constructor func(cfg core.ConnectionConfig) (core.Connector, error)

// Factory creates adapters from connection configs
type Factory interface {
	Create(cfg core.ConnectionConfig) (core.Connector, error)
	IsSupported(kind core.Kind) bool
}

// Registry manages connector registration and instantiation
type Registry struct {
	constructors map[core.Kind]Constructor
	mu           sync.RWMutex
	logger       *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[core.Kind]Constructor),
		logger:       logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register adds a constructor for a kind of the closed enumeration
func (r *Registry) Register(kind core.Kind, ctor Constructor) error {
	if !kind.IsKnown() {
		return errors.Newf(errors.ErrorTypeUnknownKind, "unknown connector kind: %s", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[kind]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "connector %s already registered", kind)
	}

	r.constructors[kind] = ctor
	r.logger.Debug("connector registered", zap.String("kind", string(kind)))
	return nil
}

// Create builds an adapter for cfg.Kind.
// Kinds outside the enumeration fail with an unknown-kind error; known kinds
// without an adapter fail with an unsupported-kind error naming the kind.
func (r *Registry) Create(cfg core.ConnectionConfig) (core.Connector, error) {
	if !cfg.Kind.IsKnown() {
		return nil, errors.Newf(errors.ErrorTypeUnknownKind, "unknown connector kind: %q", cfg.Kind).
			WithDetail("kind", string(cfg.Kind))
	}

	r.mu.RLock()
	ctor, exists := r.constructors[cfg.Kind]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedKind, "connector kind %s is not yet supported", cfg.Kind).
			WithDetail("kind", string(cfg.Kind))
	}

	conn, err := ctor(cfg.Clone())
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create %s connector", cfg.Kind)
	}
	return conn, nil
}

// IsSupported reports membership in the closed kind enumeration,
// whether or not an adapter is linked in.
func (r *Registry) IsSupported(kind core.Kind) bool {
	return kind.IsKnown()
}

// IsImplemented reports whether an adapter is registered for kind
func (r *Registry) IsImplemented(kind core.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.constructors[kind]
	return exists
}

// Kinds returns the implemented kinds, sorted
func (r *Registry) Kinds() []core.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]core.Kind, 0, len(r.constructors))
	for k := range r.constructors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Global registry functions

// Register registers a constructor in the global registry
func Register(kind core.Kind, ctor Constructor) error {
	return globalRegistry.Register(kind, ctor)
}

// MustRegister registers a constructor in the global registry and panics on failure.
// Intended for adapter init functions.
func MustRegister(kind core.Kind, ctor Constructor) {
	if err := globalRegistry.Register(kind, ctor); err != nil {
		panic(err)
	}
}

// Create builds an adapter from the global registry
func Create(cfg core.ConnectionConfig) (core.Connector, error) {
	return globalRegistry.Create(cfg)
}

// IsSupported checks the closed kind enumeration
func IsSupported(kind core.Kind) bool {
	return globalRegistry.IsSupported(kind)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
