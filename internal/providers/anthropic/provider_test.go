package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

func TestAnthropicProvider_Provider(t *testing.T) {
	provider := createTestProvider(t, "http://127.0.0.1:1")

	if provider.Provider() != types.ProviderAnthropic {
		t.Errorf("Expected provider 'anthropic', got %s", provider.Provider())
	}
}

func TestAnthropicProvider_Generate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "Bonjour"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 21, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, server.URL)
	temp := float32(0.5)

	resp, err := provider.Generate(context.Background(), "claude-3-5-haiku-20241022", &types.GenerationRequest{
		Prompt:       "Translate hello",
		SystemPrompt: "You translate to French",
		Temperature:  &temp,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != "Bonjour" {
		t.Errorf("Expected 'Bonjour', got %q", resp.Text)
	}
	if resp.InputTokens != 21 || resp.OutputTokens != 3 {
		t.Errorf("Unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	if captured["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("Expected default max_tokens, got %v", captured["max_tokens"])
	}
	system, _ := captured["system"].([]interface{})
	if len(system) != 1 {
		t.Errorf("Expected one system block, got %v", captured["system"])
	}
	if captured["temperature"] != 0.5 {
		t.Errorf("Expected temperature 0.5, got %v", captured["temperature"])
	}
}

func TestAnthropicProvider_RateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, server.URL)
	_, err := provider.Generate(context.Background(), "claude-sonnet-4-20250514", &types.GenerationRequest{Prompt: "hi"})

	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %T %v", err, err)
	}
	if pe.Kind != providers.KindRateLimit {
		t.Errorf("Expected rate_limit kind, got %s", pe.Kind)
	}
	if pe.RetryAfter != 12*time.Second {
		t.Errorf("Expected 12s retry-after, got %s", pe.RetryAfter)
	}
	if calls != 1 {
		t.Errorf("SDK retries must be disabled, got %d calls", calls)
	}
}

func TestAnthropicProvider_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, server.URL)
	_, err := provider.Generate(context.Background(), "claude-sonnet-4-20250514", &types.GenerationRequest{Prompt: "hi"})

	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.Kind != providers.KindAuth {
		t.Errorf("Expected auth error, got %v", err)
	}
}

func TestAnthropicProvider_RejectsImages(t *testing.T) {
	provider := createTestProvider(t, "http://127.0.0.1:1")

	_, err := provider.Generate(context.Background(), "claude-sonnet-4-20250514", &types.GenerationRequest{
		Prompt: "draw",
		Image:  &types.ImageSpec{Width: 512, Height: 512},
	})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.Kind != providers.KindUnsupported {
		t.Errorf("Expected unsupported error, got %v", err)
	}
}

func TestAnthropicProvider_ConvertRequest(t *testing.T) {
	provider := createTestProvider(t, "http://127.0.0.1:1")

	params := provider.convertToAnthropicRequest("claude-3-5-haiku-20241022", &types.GenerationRequest{
		Prompt:    "hello",
		MaxTokens: 300,
	})
	if params.MaxTokens != 300 {
		t.Errorf("Expected max tokens 300, got %d", params.MaxTokens)
	}
	if len(params.System) != 0 {
		t.Error("Expected no system block without a system prompt")
	}
	if len(params.Messages) != 1 {
		t.Errorf("Expected one message, got %d", len(params.Messages))
	}
}

// Helper functions
func createTestProvider(t *testing.T, baseURL string) *AnthropicProvider {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise during tests

	return NewAnthropicProvider(&AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, logger)
}
