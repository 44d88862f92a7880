package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Base URLs of providers exposing an OpenAI-compatible API
var compatibleBaseURLs = map[types.ProviderID]string{
	types.ProviderGroq:        "https://api.groq.com/openai/v1",
	types.ProviderDeepSeek:    "https://api.deepseek.com/v1",
	types.ProviderMistral:     "https://api.mistral.ai/v1",
	types.ProviderQwen:        "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	types.ProviderHuggingFace: "https://router.huggingface.co/v1",
}

// Providers known to reject response_format=json_object
var noJSONMode = map[types.ProviderID]bool{
	types.ProviderHuggingFace: true,
}

// Compatible reports whether a provider can be served by this adapter
func Compatible(provider types.ProviderID) bool {
	if provider == types.ProviderOpenAI {
		return true
	}
	_, ok := compatibleBaseURLs[provider]
	return ok
}

// OpenAIConfig holds the settings for one OpenAI-compatible provider
type OpenAIConfig struct {
	Provider types.ProviderID `yaml:"provider"`
	APIKey   string           `yaml:"api_key"`
	BaseURL  string           `yaml:"base_url"`
	OrgID    string           `yaml:"org_id"`
	Timeout  time.Duration    `yaml:"timeout"`
}

// OpenAIProvider adapts OpenAI and OpenAI-compatible chat and image APIs
type OpenAIProvider struct {
	client   *openai.Client
	provider types.ProviderID
	images   bool
	logger   *logrus.Logger
}

// NewOpenAIProvider creates a new adapter instance
func NewOpenAIProvider(config *OpenAIConfig, logger *logrus.Logger) (*OpenAIProvider, error) {
	provider := config.Provider
	if provider == "" {
		provider = types.ProviderOpenAI
	}
	if !Compatible(provider) {
		return nil, fmt.Errorf("provider %s is not OpenAI-compatible", provider)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if base, ok := compatibleBaseURLs[provider]; ok {
		clientConfig.BaseURL = base
	}
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		images:   provider == types.ProviderOpenAI,
		logger:   logger,
	}, nil
}

// Provider returns the provider id served by this adapter
func (p *OpenAIProvider) Provider() types.ProviderID {
	return p.provider
}

// SupportsImages reports whether the images endpoint is available
func (p *OpenAIProvider) SupportsImages() bool {
	return p.images
}

// Generate performs a chat completion or, for image requests, an image generation
func (p *OpenAIProvider) Generate(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
	if req.IsImage() {
		return p.generateImage(ctx, model, req)
	}

	resp, err := p.client.CreateChatCompletion(ctx, p.convertToOpenAIRequest(model, req))
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"provider": p.provider,
			"model":    model,
		}).Warn("Chat completion failed")
		return nil, p.classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.Malformed(p.provider, "response contained no choices")
	}

	return &types.AdapterResponse{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (p *OpenAIProvider) generateImage(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
	if !p.images {
		return nil, providers.Unsupported(p.provider, "image generation")
	}

	spec := req.Image
	imageReq := openai.ImageRequest{
		Prompt: req.Prompt,
		Model:  model,
		N:      spec.ResolvedCount(),
		Size:   imageSize(model, spec.Width, spec.Height),
	}
	// gpt-image models always return base64 and reject response_format
	if model == openai.CreateImageModelDallE3 || model == openai.CreateImageModelDallE2 {
		imageReq.ResponseFormat = openai.CreateImageResponseFormatURL
	}

	resp, err := p.client.CreateImage(ctx, imageReq)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"provider": p.provider,
			"model":    model,
		}).Warn("Image generation failed")
		return nil, p.classify(err)
	}

	if len(resp.Data) == 0 {
		return nil, providers.Malformed(p.provider, "image response contained no data")
	}

	tier := spec.ResolvedTier()
	images := make([]types.GeneratedImage, 0, len(resp.Data))
	for _, d := range resp.Data {
		images = append(images, types.GeneratedImage{
			URL:    d.URL,
			Base64: d.B64JSON,
			Width:  spec.Width,
			Height: spec.Height,
			Tier:   tier,
		})
	}

	return &types.AdapterResponse{Images: images}, nil
}

func (p *OpenAIProvider) convertToOpenAIRequest(model string, req *types.GenerationRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	openaiReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}
	if req.JSONOutput && !noJSONMode[p.provider] {
		openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return openaiReq
}

// classify maps client errors onto the provider error taxonomy
func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewError(p.provider, providers.KindFromStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return providers.NewError(p.provider, providers.KindFromStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, err)
	}
	return providers.NewError(p.provider, providers.KindNetwork, 0, err)
}

// imageSize picks the closest size the model accepts for the requested aspect ratio
func imageSize(model string, width, height int) string {
	landscape := width > height
	portrait := height > width

	switch model {
	case openai.CreateImageModelDallE3:
		switch {
		case landscape:
			return openai.CreateImageSize1792x1024
		case portrait:
			return openai.CreateImageSize1024x1792
		}
	case openai.CreateImageModelDallE2:
		return openai.CreateImageSize1024x1024
	default:
		switch {
		case landscape:
			return "1536x1024"
		case portrait:
			return "1024x1536"
		}
	}
	return openai.CreateImageSize1024x1024
}
