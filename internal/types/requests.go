package types

import (
	"time"
)

// GenerationRequest is the provider-agnostic request handed to every adapter
type GenerationRequest struct {
	ID           string            `json:"id"`
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	Temperature  *float32          `json:"temperature,omitempty"`
	JSONOutput   bool              `json:"json_output,omitempty"`
	Image        *ImageSpec        `json:"image,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// IsImage reports whether the request asks for image generation
func (r *GenerationRequest) IsImage() bool {
	return r != nil && r.Image != nil
}

// ImageSpec describes target images for image tasks
type ImageSpec struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Count  int       `json:"count,omitempty"`
	Tier   ImageTier `json:"tier,omitempty"`
}

// ResolvedTier returns the pricing tier for the requested dimensions
func (s *ImageSpec) ResolvedTier() ImageTier {
	if s.Tier != "" {
		return s.Tier
	}
	if s.Width > 2048 || s.Height > 2048 {
		return ImageTier4K
	}
	return ImageTier1K
}

// ResolvedCount returns the number of images, defaulting to one
func (s *ImageSpec) ResolvedCount() int {
	if s.Count <= 0 {
		return 1
	}
	return s.Count
}

// ImageUsage counts generated images of one tier
type ImageUsage struct {
	Tier  ImageTier `json:"tier"`
	Count int       `json:"count"`
}
