package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/availability"
	"github.com/tributary-ai/content-orchestrator/internal/catalog"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

var (
	// ErrNoProviderConfigured means zero providers have credentials. It is fatal
	// and must not be retried.
	ErrNoProviderConfigured = errors.New("no provider configured")

	// ErrUnknownTask is returned for a task outside the closed TaskType set
	ErrUnknownTask = errors.New("unknown task type")
)

// AvailabilitySource supplies the current availability snapshot
type AvailabilitySource interface {
	Get() availability.Snapshot
}

// Router resolves a task to a primary provider and fallback chain
type Router struct {
	catalog        *catalog.Catalog
	availability   AvailabilitySource
	preferences    PreferenceTable
	defaultProfile Profile
	logger         *logrus.Logger
}

// NewRouter creates a new router instance
func NewRouter(cat *catalog.Catalog, avail AvailabilitySource, prefs PreferenceTable, defaultProfile Profile, logger *logrus.Logger) (*Router, error) {
	if prefs == nil {
		prefs = DefaultPreferences()
	}
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preference table: %w", err)
	}
	if defaultProfile == "" {
		defaultProfile = ProfileDefault
	}

	return &Router{
		catalog:        cat,
		availability:   avail,
		preferences:    prefs,
		defaultProfile: defaultProfile,
		logger:         logger,
	}, nil
}

// DefaultProfile returns the profile used when callers do not pick one
func (r *Router) DefaultProfile() Profile {
	return r.defaultProfile
}

// SelectRoute walks the preference list for (task, profile) and returns the first
// available entry as primary and the later available entries as fallbacks
func (r *Router) SelectRoute(task TaskType, profile Profile) (*SelectedRoute, error) {
	if _, err := ParseTask(string(task)); err != nil {
		return nil, err
	}
	if profile == "" {
		profile = r.defaultProfile
	}

	snapshot := r.availability.Get()
	if !snapshot.Any() {
		r.logger.WithField("task", task).Error("Routing failed: no provider has credentials")
		return nil, fmt.Errorf("%w: no provider credentials found for task %s", ErrNoProviderConfigured, task)
	}

	refs, resolved := r.preferences.Lookup(task, profile)

	route := &SelectedRoute{
		Task:    task,
		Profile: profile,
		RoutingContext: RoutingContext{
			ResolvedProfile:    resolved,
			AvailableProviders: snapshot.Available(),
			Timestamp:          time.Now(),
		},
	}

	var selected []types.ProviderProfile
	for _, ref := range refs {
		route.RoutingContext.ConsideredProviders = append(route.RoutingContext.ConsideredProviders, ref.String())
		if !snapshot.IsAvailable(ref.Provider) {
			route.RoutingContext.SkippedProviders = append(route.RoutingContext.SkippedProviders, ref.String())
			continue
		}
		selected = append(selected, r.catalog.Resolve(ref))
	}

	if len(selected) > 0 {
		route.Reasoning = append(route.Reasoning,
			fmt.Sprintf("Preference list %s/%s selected %s", resolved, task, selected[0].Key()))
		if len(route.RoutingContext.SkippedProviders) > 0 {
			route.Reasoning = append(route.Reasoning,
				fmt.Sprintf("Skipped %d entries without credentials", len(route.RoutingContext.SkippedProviders)))
		}
	} else {
		selected = r.universalCandidates(task.IsImage(), snapshot)
		route.RoutingContext.UniversalFallback = true
		route.Reasoning = append(route.Reasoning,
			fmt.Sprintf("No preferred provider available for %s; universal fallback selected %s", task, selected[0].Key()))
	}

	route.Primary = selected[0]
	route.Fallbacks = selected[1:]

	r.logger.WithFields(logrus.Fields{
		"task":      task,
		"profile":   profile,
		"primary":   route.Primary.Key(),
		"fallbacks": len(route.Fallbacks),
		"universal": route.RoutingContext.UniversalFallback,
	}).Debug("Route selected")

	return route, nil
}

// universalCandidates resolves the provider-agnostic order: the kind-specific list
// first, then every catalog provider's default model. Never empty when the
// snapshot has at least one available provider.
func (r *Router) universalCandidates(image bool, snapshot availability.Snapshot) []types.ProviderProfile {
	list := universalText
	if image {
		list = universalImage
	}

	seen := make(map[string]bool)
	var out []types.ProviderProfile
	add := func(p types.ProviderProfile) {
		if seen[p.Key()] || !snapshot.IsAvailable(p.Provider) {
			return
		}
		seen[p.Key()] = true
		out = append(out, p)
	}

	for _, ref := range list {
		add(r.catalog.Resolve(ref))
	}

	covered := make(map[types.ProviderID]bool)
	for _, p := range out {
		covered[p.Provider] = true
	}
	for _, provider := range r.catalog.Providers() {
		if covered[provider] {
			continue
		}
		if p, ok := r.catalog.DefaultModel(provider, image); ok {
			add(p)
		}
	}

	// Available providers missing from the catalog still get a route, by provider name only
	for _, provider := range snapshot.Available() {
		if !covered[provider] && len(r.catalog.ListModelsForProvider(provider)) == 0 {
			add(types.ProviderProfile{Provider: provider})
		}
	}

	return out
}
