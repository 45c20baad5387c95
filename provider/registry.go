package provider

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderRegistry manages all payment provider implementations
type ProviderRegistry struct {
	providers map[string]ProviderFactory
	mu        sync.RWMutex
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register adds a payment provider factory to the registry
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
}

// Get retrieves a payment provider factory by name
func (r *ProviderRegistry) Get(name string) (ProviderFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("payment provider '%s' is not registered", name)
	}

	return factory, nil
}

// Build creates a provider by name, validates conf and initializes it
func (r *ProviderRegistry) Build(name string, conf map[string]string) (PaymentProvider, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if len(conf) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotConfigured)
	}

	p := factory()
	if err := p.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if err := p.Initialize(conf); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProviderNames returns the registered provider names in order
func (r *ProviderRegistry) GetProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// DefaultRegistry is the global default provider registry
var DefaultRegistry = NewProviderRegistry()

// Register registers a provider with the default registry
func Register(name string, factory ProviderFactory) {
	DefaultRegistry.Register(name, factory)
}

// Build creates an initialized provider from the default registry
func Build(name string, conf map[string]string) (PaymentProvider, error) {
	return DefaultRegistry.Build(name, conf)
}
