package routing

import (
	"time"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// SelectedRoute is the result of routing a task
type SelectedRoute struct {
	Task    TaskType `json:"task"`
	Profile Profile  `json:"profile"`

	// First available entry of the active preference list
	Primary types.ProviderProfile `json:"primary"`

	// Remaining available entries in their original relative order
	Fallbacks []types.ProviderProfile `json:"fallbacks"`

	// Human-readable reasoning for the decision
	Reasoning []string `json:"reasoning"`

	RoutingContext RoutingContext `json:"routing_context"`
}

// Candidates returns [primary, ...fallbacks]
func (r *SelectedRoute) Candidates() []types.ProviderProfile {
	out := make([]types.ProviderProfile, 0, 1+len(r.Fallbacks))
	out = append(out, r.Primary)
	out = append(out, r.Fallbacks...)
	return out
}

// RoutingContext contains additional context about the routing decision
type RoutingContext struct {
	// Profile whose table supplied the preference list
	ResolvedProfile Profile `json:"resolved_profile"`

	// Entries of the preference list, in order
	ConsideredProviders []string `json:"considered_providers"`

	// Entries skipped because their provider had no credentials
	SkippedProviders []string `json:"skipped_providers,omitempty"`

	// Set when the provider-agnostic resolution order was used
	UniversalFallback bool `json:"universal_fallback"`

	// Providers usable at routing time
	AvailableProviders []types.ProviderID `json:"available_providers"`

	Timestamp time.Time `json:"timestamp"`
}
