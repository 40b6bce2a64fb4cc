package provider

import (
	"fmt"
	"sort"

	"Prospector/internal/ports"
)

// Registry keeps a mapping from back-end names to generator implementations.
type Registry struct {
	generators map[string]ports.Generator
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: map[string]ports.Generator{}}
}

// Register adds or replaces a generator implementation. Nil is ignored.
func (r *Registry) Register(gen ports.Generator) {
	if gen == nil {
		return
	}
	if r.generators == nil {
		r.generators = map[string]ports.Generator{}
	}
	r.generators[gen.Name()] = gen
}

// Resolve returns a generator by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.Generator, error) {
	if gen, ok := r.generators[name]; ok {
		return gen, nil
	}
	return nil, fmt.Errorf("generator %s is not registered (available: %v)", name, r.Names())
}

// Names lists registered back ends in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
