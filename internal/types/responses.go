package types

import (
	"time"
)

// AdapterResponse is what a provider adapter returns on success
type AdapterResponse struct {
	Text         string           `json:"text"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	Images       []GeneratedImage `json:"images,omitempty"`

	// Exact billed amount when the provider reports it
	CostOverride *float64 `json:"cost_override,omitempty"`
}

// GeneratedImage is one image produced by an image model
type GeneratedImage struct {
	URL    string    `json:"url,omitempty"`
	Base64 string    `json:"b64_json,omitempty"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
	Tier   ImageTier `json:"tier,omitempty"`
}

// CascadeAttempt records one provider tried during a logical request
type CascadeAttempt struct {
	Provider  ProviderID    `json:"provider"`
	Model     string        `json:"model"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Retries   int           `json:"retries"`
	Duration  time.Duration `json:"duration"`
}

// GenerationResult is the outcome of a full cascade
type GenerationResult struct {
	RequestID    string           `json:"request_id"`
	Success      bool             `json:"success"`
	Provider     ProviderID       `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	Text         string           `json:"text,omitempty"`
	Images       []GeneratedImage `json:"images,omitempty"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	CostOverride *float64         `json:"cost_override,omitempty"`
	Attempts     []CascadeAttempt `json:"attempts"`
	Duration     time.Duration    `json:"duration"`
}

// ImageUsage summarizes generated images by tier
func (r *GenerationResult) ImageUsage(fallback ImageTier) []ImageUsage {
	if len(r.Images) == 0 {
		return nil
	}
	counts := make(map[ImageTier]int)
	var order []ImageTier
	for _, img := range r.Images {
		tier := img.Tier
		if tier == "" {
			tier = fallback
		}
		if _, seen := counts[tier]; !seen {
			order = append(order, tier)
		}
		counts[tier]++
	}
	usage := make([]ImageUsage, 0, len(order))
	for _, tier := range order {
		usage = append(usage, ImageUsage{Tier: tier, Count: counts[tier]})
	}
	return usage
}

// CostBreakdown splits a call's cost into components
type CostBreakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	ImageCost  float64 `json:"image_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// UsageRecord is an immutable log entry for one completed provider call
type UsageRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Provider     ProviderID        `json:"provider"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	InputCost    float64           `json:"input_cost"`
	OutputCost   float64           `json:"output_cost"`
	ImageCost    float64           `json:"image_cost"`
	TotalCost    float64           `json:"total_cost"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ProviderSummary aggregates calls and spend for one provider
type ProviderSummary struct {
	Provider ProviderID `json:"provider"`
	Calls    int        `json:"calls"`
	Spend    float64    `json:"spend"`
}

// Error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message  string           `json:"message"`
	Type     string           `json:"type"`
	Code     int              `json:"code"`
	Attempts []CascadeAttempt `json:"attempts,omitempty"`
	Offset   *int64           `json:"offset,omitempty"`
	Window   string           `json:"window,omitempty"`
}
