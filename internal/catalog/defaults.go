package catalog

import (
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Default returns the built-in catalog. Prices are USD per 1M tokens or per image.
func Default() *Catalog {
	return New(defaultProfiles()...)
}

func textModel(provider types.ProviderID, model, display string, in, out float64, maxOut, ctx int, vision bool, cost types.CostTier, speed types.SpeedTier) types.ProviderProfile {
	return types.ProviderProfile{
		Provider:    provider,
		Model:       model,
		DisplayName: display,
		Pricing: types.Pricing{
			InputPer1M:  in,
			OutputPer1M: out,
		},
		Capabilities: types.Capabilities{
			MaxOutputTokens:   maxOut,
			ContextWindow:     ctx,
			SupportsImages:    vision,
			SupportsStreaming: true,
		},
		CostTier:  cost,
		SpeedTier: speed,
	}
}

func imageModel(provider types.ProviderID, model, display string, price1k, price4k float64, cost types.CostTier, speed types.SpeedTier) types.ProviderProfile {
	return types.ProviderProfile{
		Provider:    provider,
		Model:       model,
		DisplayName: display,
		Pricing: types.Pricing{
			ImageTiers: map[types.ImageTier]float64{
				types.ImageTier1K: price1k,
				types.ImageTier4K: price4k,
			},
		},
		Capabilities: types.Capabilities{
			GeneratesImages: true,
		},
		CostTier:  cost,
		SpeedTier: speed,
	}
}

func defaultProfiles() []types.ProviderProfile {
	return []types.ProviderProfile{
		// OpenAI
		textModel(types.ProviderOpenAI, "gpt-4o", "GPT-4o", 2.50, 10.00, 16384, 128000, true, types.CostTierHigh, types.SpeedTierMedium),
		textModel(types.ProviderOpenAI, "gpt-4o-mini", "GPT-4o mini", 0.15, 0.60, 16384, 128000, true, types.CostTierLow, types.SpeedTierFast),
		imageModel(types.ProviderOpenAI, "gpt-image-1", "GPT Image 1", 0.042, 0.167, types.CostTierHigh, types.SpeedTierSlow),
		imageModel(types.ProviderOpenAI, "dall-e-3", "DALL-E 3", 0.040, 0.120, types.CostTierMedium, types.SpeedTierMedium),

		// Anthropic
		textModel(types.ProviderAnthropic, "claude-sonnet-4-20250514", "Claude Sonnet 4", 3.00, 15.00, 64000, 200000, true, types.CostTierHigh, types.SpeedTierMedium),
		textModel(types.ProviderAnthropic, "claude-3-5-haiku-20241022", "Claude 3.5 Haiku", 0.80, 4.00, 8192, 200000, true, types.CostTierLow, types.SpeedTierFast),

		// Google
		textModel(types.ProviderGoogle, "gemini-2.5-pro", "Gemini 2.5 Pro", 1.25, 10.00, 65536, 1048576, true, types.CostTierHigh, types.SpeedTierSlow),
		textModel(types.ProviderGoogle, "gemini-2.5-flash", "Gemini 2.5 Flash", 0.30, 2.50, 65536, 1048576, true, types.CostTierLow, types.SpeedTierFast),

		// Groq
		textModel(types.ProviderGroq, "llama-3.3-70b-versatile", "Llama 3.3 70B (Groq)", 0.59, 0.79, 32768, 131072, false, types.CostTierLow, types.SpeedTierFast),
		textModel(types.ProviderGroq, "llama-3.1-8b-instant", "Llama 3.1 8B (Groq)", 0.05, 0.08, 8192, 131072, false, types.CostTierLow, types.SpeedTierFast),

		// Mistral
		textModel(types.ProviderMistral, "mistral-large-latest", "Mistral Large", 2.00, 6.00, 8192, 131072, false, types.CostTierMedium, types.SpeedTierMedium),
		textModel(types.ProviderMistral, "mistral-small-latest", "Mistral Small", 0.10, 0.30, 8192, 32768, false, types.CostTierLow, types.SpeedTierFast),

		// DeepSeek
		textModel(types.ProviderDeepSeek, "deepseek-chat", "DeepSeek V3", 0.27, 1.10, 8192, 65536, false, types.CostTierLow, types.SpeedTierMedium),
		textModel(types.ProviderDeepSeek, "deepseek-reasoner", "DeepSeek R1", 0.55, 2.19, 32768, 65536, false, types.CostTierMedium, types.SpeedTierSlow),

		// Runware
		imageModel(types.ProviderRunware, "runware:100@1", "FLUX.1 schnell (Runware)", 0.0013, 0.0052, types.CostTierLow, types.SpeedTierFast),
		imageModel(types.ProviderRunware, "runware:101@1", "FLUX.1 dev (Runware)", 0.0038, 0.0152, types.CostTierLow, types.SpeedTierMedium),

		// Hugging Face router; serverless pricing varies so it is left unpriced
		textModel(types.ProviderHuggingFace, "meta-llama/Llama-3.3-70B-Instruct", "Llama 3.3 70B (HF)", 0, 0, 8192, 131072, false, types.CostTierLow, types.SpeedTierMedium),

		// Qwen (DashScope compatible mode)
		textModel(types.ProviderQwen, "qwen-plus", "Qwen Plus", 0.40, 1.20, 8192, 131072, false, types.CostTierLow, types.SpeedTierMedium),
		textModel(types.ProviderQwen, "qwen-turbo", "Qwen Turbo", 0.05, 0.20, 8192, 1000000, false, types.CostTierLow, types.SpeedTierFast),
	}
}
