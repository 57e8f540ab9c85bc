package provider

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Registry holds the closed set of provider adapters. It is populated once at
// startup and read-only afterwards; there is no runtime registration path, so
// adding a provider is a compile-time change in the wiring.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the registry from the full adapter set.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
		log.Info().
			Str("provider", a.Name()).
			Str("type", a.MethodInfo().Type).
			Msg("registered payment provider")
	}
	return r
}

// Get resolves an adapter by provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names returns all registered provider names, sorted for determinism.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
