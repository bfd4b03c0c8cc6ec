package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// DefaultProviderName is used when EMBEDDING_PROVIDER is unset.
const DefaultProviderName = "http"

// Registry stores embedding providers and resolves a default provider.
// Selection happens once at startup; call sites receive a Provider value.
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

// Provider resolves a provider by name. Empty names use the configured
// default provider.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no embedding providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	provider, ok := r.providers[resolvedName]
	if ok {
		return provider, nil
	}

	return nil, fmt.Errorf("embedding provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
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

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LocalProvider derives deterministic pseudo-embeddings from token hashes.
// It exists for local development and tests where no embedding service is
// reachable; cosine similarity over its vectors tracks token overlap only.
type LocalProvider struct {
	dimensions int
}

func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &LocalProvider{dimensions: dimensions}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Dimensions() int {
	if p == nil {
		return 0
	}
	return p.dimensions
}

func (p *LocalProvider) Embed(_ context.Context, text string) ([]float64, error) {
	if p == nil {
		return nil, fmt.Errorf("local embedding provider is not initialized")
	}
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	vector := make([]float64, p.dimensions)
	for _, token := range strings.Fields(trimmed) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		h := hasher.Sum64()
		vector[int(h%uint64(p.dimensions))] += 1
	}
	return vector, nil
}
