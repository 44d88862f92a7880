package providers

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Registry holds the adapter for each configured provider
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.ProviderID]Adapter
	logger   *logrus.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		adapters: make(map[types.ProviderID]Adapter),
		logger:   logger,
	}
}

// Register adds or replaces the adapter for its provider
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	r.adapters[adapter.Provider()] = adapter
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"provider": adapter.Provider(),
			"images":   SupportsImages(adapter),
		}).Info("Provider registered")
	}
}

// Get returns the adapter for a provider
func (r *Registry) Get(provider types.ProviderID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	return a, ok
}

// Providers lists registered providers sorted by name
func (r *Registry) Providers() []types.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProviderID, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	types.SortProviders(out)
	return out
}
