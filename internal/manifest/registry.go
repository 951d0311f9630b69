package manifest

import (
	"fmt"

	"github.com/latticectl/lattice/internal/resource"
)

// Factory builds a resource.Resource from its declared spec. Providers
// register one Factory per kind they implement (e.g. "file", "service").
// Build wraps the returned resource so the spec's Depends/Tags/Parent/
// Container take effect (the schedule stays the returned resource's own);
// a Factory only needs to decode Properties
// and produce the kind-specific behavior (Evaluate, and any optional
// capabilities it supports).
type Factory func(spec ResourceSpec) (resource.Resource, error)

// Registry maps a resource kind to the provider factory that constructs it.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a provider factory under kind. Registering the same kind
// twice is a programmer error and panics, matching the teacher's pattern of
// failing fast on duplicate provider registration.
func (r *Registry) Register(kind string, factory Factory) {
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("manifest: provider kind %q already registered", kind))
	}
	r.factories[kind] = factory
}

func (r *Registry) lookup(kind string) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}
