package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// GoogleConfig holds Gemini API configuration
type GoogleConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// GoogleProvider adapts the Gemini generateContent API
type GoogleProvider struct {
	client *genai.Client
	logger *logrus.Logger
}

// NewGoogleProvider creates a Gemini client for the public Gemini API backend
func NewGoogleProvider(ctx context.Context, config *GoogleConfig, logger *logrus.Logger) (*GoogleProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GoogleProvider{
		client: client,
		logger: logger,
	}, nil
}

// Provider returns the provider name
func (p *GoogleProvider) Provider() types.ProviderID {
	return types.ProviderGoogle
}

// Generate performs a text generation
func (p *GoogleProvider) Generate(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
	if req.IsImage() {
		return nil, providers.Unsupported(types.ProviderGoogle, "image generation")
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), buildConfig(req))
	if err != nil {
		p.logger.WithError(err).WithField("model", model).Warn("Gemini API call failed")
		return nil, classify(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, providers.Malformed(types.ProviderGoogle, "response contained no text candidates")
	}

	out := &types.AdapterResponse{Text: text}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func buildConfig(req *types.GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := *req.Temperature
		cfg.Temperature = &t
	}
	if req.JSONOutput {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return providers.NewError(types.ProviderGoogle, providers.KindNetwork, 0, err)
	}
	return providers.NewError(types.ProviderGoogle, providers.KindFromStatus(code), code, err)
}
