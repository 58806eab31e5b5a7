package llm

import (
	"fmt"
	"sort"
	"sync"

	"smart-query/internal/domain"
)

// Registry resolves the provider half of a "provider/model" reference to a
// configured LLM provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds a provider under its configured name. Names are unique.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("llm.registry", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ domain.ProviderRegistry = (*Registry)(nil)
