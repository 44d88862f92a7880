package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Anthropic requires max_tokens on every request
const defaultMaxTokens = 1024

// AnthropicProvider adapts the Claude Messages API
type AnthropicProvider struct {
	client *anthropic.Client
	logger *logrus.Logger
}

// AnthropicConfig holds Anthropic-specific configuration
type AnthropicConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider(config *AnthropicConfig, logger *logrus.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// The execution engine owns retry and backoff
		option.WithMaxRetries(0),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		logger: logger,
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() types.ProviderID {
	return types.ProviderAnthropic
}

// Generate performs a text completion through the Messages API
func (p *AnthropicProvider) Generate(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
	if req.IsImage() {
		return nil, providers.Unsupported(types.ProviderAnthropic, "image generation")
	}

	resp, err := p.client.Messages.New(ctx, p.convertToAnthropicRequest(model, req))
	if err != nil {
		p.logger.WithError(err).WithField("model", model).Warn("Anthropic API call failed")
		return nil, classify(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, providers.Malformed(types.ProviderAnthropic, "response contained no text blocks (stop reason %s)", resp.StopReason)
	}

	return &types.AdapterResponse{
		Text:         text.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func (p *AnthropicProvider) convertToAnthropicRequest(model string, req *types.GenerationRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model: anthropic.Model(model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		MaxTokens: defaultMaxTokens,
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	return params
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := providers.NewError(types.ProviderAnthropic, providers.KindFromStatus(apiErr.StatusCode), apiErr.StatusCode, err)
		// 529 overloaded is Anthropic's capacity signal
		if apiErr.StatusCode == 529 {
			pe.Kind = providers.KindRateLimit
		}
		if apiErr.Response != nil {
			pe.RetryAfter = providers.ParseRetryAfterHeader(apiErr.Response.Header, time.Now())
		}
		return pe
	}
	return providers.NewError(types.ProviderAnthropic, providers.KindNetwork, 0, err)
}
