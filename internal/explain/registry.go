package explain

import (
	"fmt"
	"sort"
	"strings"

	"horse.fit/signalwatch/internal/config"
)

const (
	// DefaultProviderName is used when EXPLAIN_PROVIDER is unset.
	DefaultProviderName = "local"
	// DisabledProviderName turns explanation generation off.
	DisabledProviderName = "none"
)

// Registry stores explanation providers and resolves a default provider.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := normalizeProviderName(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}

	return &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: normalizedDefault,
	}
}

// NewRegistryFromConfig registers the local provider, paced to
// EXPLAIN_REQUESTS_PER_MINUTE, and the disabled provider.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	if cfg == nil {
		registry := NewRegistry(DisabledProviderName)
		_ = registry.Register(DisabledProvider{})
		return registry
	}

	registry := NewRegistry(cfg.ExplainProvider)
	local := NewLocalProvider(cfg.ExplainEndpoint, cfg.ExplainModel)
	_ = registry.Register(NewRateLimited(local, cfg.ExplainRequestsPerMinute))
	_ = registry.Register(DisabledProvider{})

	if _, exists := registry.providers[registry.defaultProvider]; !exists {
		registry.defaultProvider = DefaultProviderName
	}
	return registry
}

// Register adds one provider.
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	return nil
}

// Provider resolves a provider by name. Empty names use the configured default provider.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no explanation providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	provider, ok := r.providers[resolvedName]
	if ok {
		return provider, nil
	}

	return nil, fmt.Errorf("explanation provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
}

func (r *Registry) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
