package payments

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps configured variant names to provider instances.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces the provider behind variant.
func (m *Registry) Register(variant string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[variant] = provider
}

func (m *Registry) Provider(variant string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider, ok := m.providers[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, variant)
	}
	return provider, nil
}

// Variants lists registered variant names in sorted order.
func (m *Registry) Variants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.providers))
	for name := range m.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
