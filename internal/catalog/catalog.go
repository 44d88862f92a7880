// Package catalog holds the static provider/model table with pricing and capabilities.
package catalog

import (
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Catalog is a read-only index of provider profiles. Lookups never fail beyond
// "not found", which callers treat as unknown cost.
type Catalog struct {
	profiles []types.ProviderProfile
	index    map[string]int
}

// New builds a catalog from profiles. Later entries for the same provider/model
// replace earlier ones in place.
func New(profiles ...types.ProviderProfile) *Catalog {
	c := &Catalog{
		profiles: make([]types.ProviderProfile, 0, len(profiles)),
		index:    make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		c.put(p)
	}
	return c
}

func (c *Catalog) put(p types.ProviderProfile) {
	if i, exists := c.index[p.Key()]; exists {
		c.profiles[i] = p
		return
	}
	c.index[p.Key()] = len(c.profiles)
	c.profiles = append(c.profiles, p)
}

// WithOverrides returns a new catalog with overrides merged over this one
func (c *Catalog) WithOverrides(overrides ...types.ProviderProfile) *Catalog {
	merged := make([]types.ProviderProfile, 0, len(c.profiles)+len(overrides))
	merged = append(merged, c.profiles...)
	merged = append(merged, overrides...)
	return New(merged...)
}

// Lookup returns the profile for a provider/model pair
func (c *Catalog) Lookup(provider types.ProviderID, model string) (types.ProviderProfile, bool) {
	i, ok := c.index[string(provider)+"/"+model]
	if !ok {
		return types.ProviderProfile{}, false
	}
	return c.profiles[i], true
}

// LookupPricing returns the pricing for a provider/model pair
func (c *Catalog) LookupPricing(provider types.ProviderID, model string) (types.Pricing, bool) {
	p, ok := c.Lookup(provider, model)
	if !ok {
		return types.Pricing{}, false
	}
	return p.Pricing, true
}

// ListModelsForProvider returns every profile of a provider in catalog order
func (c *Catalog) ListModelsForProvider(provider types.ProviderID) []types.ProviderProfile {
	var out []types.ProviderProfile
	for _, p := range c.profiles {
		if p.Provider == provider {
			out = append(out, p)
		}
	}
	return out
}

// Providers returns the distinct providers in catalog order
func (c *Catalog) Providers() []types.ProviderID {
	seen := make(map[types.ProviderID]bool)
	var out []types.ProviderID
	for _, p := range c.profiles {
		if !seen[p.Provider] {
			seen[p.Provider] = true
			out = append(out, p.Provider)
		}
	}
	return out
}

// All returns a copy of every profile
func (c *Catalog) All() []types.ProviderProfile {
	out := make([]types.ProviderProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// DefaultModel picks the first model of a provider matching the requested kind.
// When the provider has no model of that kind its first model is returned.
func (c *Catalog) DefaultModel(provider types.ProviderID, image bool) (types.ProviderProfile, bool) {
	models := c.ListModelsForProvider(provider)
	if len(models) == 0 {
		return types.ProviderProfile{}, false
	}
	for _, m := range models {
		if m.Capabilities.GeneratesImages == image {
			return m, true
		}
	}
	return models[0], true
}

// Resolve returns the catalog profile for a reference, or a zero-priced profile
// carrying just the identity when the model is not in the table.
func (c *Catalog) Resolve(ref types.ModelRef) types.ProviderProfile {
	if p, ok := c.Lookup(ref.Provider, ref.Model); ok {
		return p
	}
	return types.ProviderProfile{Provider: ref.Provider, Model: ref.Model}
}
