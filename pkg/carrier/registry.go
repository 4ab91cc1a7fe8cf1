package carrier

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnsupportedCarrier indicates no connector is registered for a carrier.
var ErrUnsupportedCarrier = errors.New("carrier not supported")

// Factory constructs a connector for its carrier. Factories run at most once
// per registry; the resulting connector is reused for every call.
type Factory func() (Connector, error)

// Registry is a closed table of carrier name to connector factory, validated
// at construction. Connectors are built lazily and memoized.
type Registry struct {
	factories map[string]Factory

	mu         sync.Mutex
	connectors map[string]Connector
}

// NewRegistry validates and builds a connector registry.
func NewRegistry(factories map[string]Factory) (*Registry, error) {
	if len(factories) == 0 {
		return nil, fmt.Errorf("registry requires at least one connector factory")
	}

	normalized := make(map[string]Factory, len(factories))
	for name, factory := range factories {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("connector factory with empty carrier name")
		}
		if factory == nil {
			return nil, fmt.Errorf("nil connector factory for carrier %q", name)
		}
		if _, dup := normalized[name]; dup {
			return nil, fmt.Errorf("duplicate connector factory for carrier %q", name)
		}
		normalized[name] = factory
	}

	return &Registry{
		factories:  normalized,
		connectors: make(map[string]Connector),
	}, nil
}

// Supports reports whether a connector is registered for the carrier.
func (r *Registry) Supports(carrier string) bool {
	_, ok := r.factories[strings.ToLower(strings.TrimSpace(carrier))]
	return ok
}

// Carriers returns the registered carrier names.
func (r *Registry) Carriers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Resolve returns the connector for a carrier, constructing it on first use.
// Returns ErrUnsupportedCarrier for unknown carriers.
func (r *Registry) Resolve(carrier string) (Connector, error) {
	name := strings.ToLower(strings.TrimSpace(carrier))

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCarrier, carrier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if connector, ok := r.connectors[name]; ok {
		return connector, nil
	}

	connector, err := factory()
	if err != nil {
		return nil, fmt.Errorf("construct %s connector: %w", name, err)
	}
	r.connectors[name] = connector

	return connector, nil
}
