package types

import "sort"

// ProviderID identifies an external AI vendor
type ProviderID string

const (
	ProviderOpenAI      ProviderID = "openai"
	ProviderAnthropic   ProviderID = "anthropic"
	ProviderGoogle      ProviderID = "google"
	ProviderGroq        ProviderID = "groq"
	ProviderMistral     ProviderID = "mistral"
	ProviderDeepSeek    ProviderID = "deepseek"
	ProviderRunware     ProviderID = "runware"
	ProviderHuggingFace ProviderID = "huggingface"
	ProviderQwen        ProviderID = "qwen"
)

// AllProviders lists every provider known to the orchestrator in catalog order
func AllProviders() []ProviderID {
	return []ProviderID{
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderGoogle,
		ProviderGroq,
		ProviderMistral,
		ProviderDeepSeek,
		ProviderRunware,
		ProviderHuggingFace,
		ProviderQwen,
	}
}

// ParseProviderID returns the provider for a name, or false if unknown
func ParseProviderID(name string) (ProviderID, bool) {
	for _, p := range AllProviders() {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}

// SortProviders sorts provider ids alphabetically in place
func SortProviders(ids []ProviderID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// ImageTier is a resolution class used for per-image pricing
type ImageTier string

const (
	ImageTier1K ImageTier = "1k"
	ImageTier4K ImageTier = "4k"
)

// CostTier is a coarse price classification
type CostTier string

const (
	CostTierLow    CostTier = "low"
	CostTierMedium CostTier = "medium"
	CostTierHigh   CostTier = "high"
)

// SpeedTier is a coarse latency classification
type SpeedTier string

const (
	SpeedTierFast   SpeedTier = "fast"
	SpeedTierMedium SpeedTier = "medium"
	SpeedTierSlow   SpeedTier = "slow"
)

// Pricing holds per-model prices in USD
type Pricing struct {
	InputPer1M  float64               `json:"input_per_1m" yaml:"input_per_1m"`
	OutputPer1M float64               `json:"output_per_1m" yaml:"output_per_1m"`
	ImageTiers  map[ImageTier]float64 `json:"image_tiers,omitempty" yaml:"image_tiers,omitempty"`
}

// Capabilities describes what a model can do
type Capabilities struct {
	MaxOutputTokens   int  `json:"max_output_tokens" yaml:"max_output_tokens"`
	ContextWindow     int  `json:"context_window" yaml:"context_window"`
	SupportsImages    bool `json:"supports_images" yaml:"supports_images"`
	SupportsStreaming bool `json:"supports_streaming" yaml:"supports_streaming"`
	GeneratesImages   bool `json:"generates_images" yaml:"generates_images"`
}

// ProviderProfile is the identity of one callable model
type ProviderProfile struct {
	Provider     ProviderID   `json:"provider" yaml:"provider"`
	Model        string       `json:"model" yaml:"model"`
	DisplayName  string       `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Pricing      Pricing      `json:"pricing" yaml:"pricing"`
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`
	CostTier     CostTier     `json:"cost_tier,omitempty" yaml:"cost_tier,omitempty"`
	SpeedTier    SpeedTier    `json:"speed_tier,omitempty" yaml:"speed_tier,omitempty"`
}

// Key returns "provider/model"
func (p ProviderProfile) Key() string {
	return string(p.Provider) + "/" + p.Model
}

// ModelRef points at a provider/model pair in a preference list
type ModelRef struct {
	Provider ProviderID `json:"provider" yaml:"provider"`
	Model    string     `json:"model" yaml:"model"`
}

func (r ModelRef) String() string {
	return string(r.Provider) + "/" + r.Model
}
