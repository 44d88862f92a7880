package providers

import (
	"context"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Adapter translates a provider-agnostic request into one provider's wire format and back.
// Failures must be returned as *ProviderError so the execution engine can classify them.
type Adapter interface {
	Provider() types.ProviderID
	Generate(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error)
}

// ImageAdapter is implemented by adapters that can render images
type ImageAdapter interface {
	Adapter
	SupportsImages() bool
}

// SupportsImages reports whether an adapter advertises image generation
func SupportsImages(a Adapter) bool {
	ia, ok := a.(ImageAdapter)
	return ok && ia.SupportsImages()
}
