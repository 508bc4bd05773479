package llm

import (
	"fmt"
	"sync"

	"solmate/internal/domain"
)

// Registry holds named LLM backends together with their public profiles.
// Registration happens once at startup; lookups are concurrent.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Generator
	profiles  map[string]domain.ProviderProfile
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.Generator),
		profiles:  make(map[string]domain.ProviderProfile),
	}
}

// Register adds a backend with its profile. Returns error if the name is
// already registered.
func (r *Registry) Register(provider domain.Generator, profile domain.ProviderProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	r.profiles[name] = profile
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a backend by name.
func (r *Registry) Get(name string) (domain.Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrUnsupportedProvider, name)
	}
	return p, nil
}

// Profile returns the profile for a registered backend.
func (r *Registry) Profile(name string) (domain.ProviderProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prof, ok := r.profiles[name]
	if !ok {
		return domain.ProviderProfile{}, domain.NewDomainError("Registry.Profile", domain.ErrUnsupportedProvider, name)
	}
	return prof, nil
}

// Profiles returns all profiles in registration order.
func (r *Registry) Profiles() []domain.ProviderProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ProviderProfile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.profiles[name])
	}
	return out
}

// Names returns all registered backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
