package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

func TestOpenAIProvider_ChatCompletion(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\":true}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, types.ProviderOpenAI, server.URL+"/v1")
	temp := float32(0.3)

	resp, err := provider.Generate(context.Background(), "gpt-4o-mini", &types.GenerationRequest{
		Prompt:       "Say ok",
		SystemPrompt: "You are terse",
		MaxTokens:    50,
		Temperature:  &temp,
		JSONOutput:   true,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != `{"ok":true}` {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("Unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	messages, _ := captured["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(messages))
	}
	if first := messages[0].(map[string]interface{}); first["role"] != "system" {
		t.Errorf("Expected system message first, got %v", first["role"])
	}
	if captured["max_tokens"] != float64(50) {
		t.Errorf("Expected max_tokens 50, got %v", captured["max_tokens"])
	}
	if format, ok := captured["response_format"].(map[string]interface{}); !ok || format["type"] != "json_object" {
		t.Errorf("Expected json_object response format, got %v", captured["response_format"])
	}
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   providers.ErrorKind
	}{
		{"rate limit", 429, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, providers.KindRateLimit},
		{"auth", 401, `{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key"}}`, providers.KindAuth},
		{"server", 503, `{"error":{"message":"overloaded","type":"server_error"}}`, providers.KindServer},
		{"non-json server error", 502, `Bad Gateway`, providers.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := createTestProvider(t, types.ProviderGroq, server.URL+"/v1")
			_, err := provider.Generate(context.Background(), "llama-3.1-8b-instant", &types.GenerationRequest{Prompt: "hi"})

			var pe *providers.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected ProviderError, got %T %v", err, err)
			}
			if pe.Kind != tt.want {
				t.Errorf("Expected kind %s, got %s", tt.want, pe.Kind)
			}
			if pe.Provider != types.ProviderGroq {
				t.Errorf("Expected provider groq, got %s", pe.Provider)
			}
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[],"usage":{"prompt_tokens":1}}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, types.ProviderDeepSeek, server.URL)
	_, err := provider.Generate(context.Background(), "deepseek-chat", &types.GenerationRequest{Prompt: "hi"})

	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.Kind != providers.KindMalformed {
		t.Errorf("Expected malformed error, got %v", err)
	}
}

func TestOpenAIProvider_ImageGeneration(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created": 1, "data": [{"url": "https://images.example/1.png"}]}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, types.ProviderOpenAI, server.URL+"/v1")
	resp, err := provider.Generate(context.Background(), "dall-e-3", &types.GenerationRequest{
		Prompt: "a lighthouse",
		Image:  &types.ImageSpec{Width: 1792, Height: 1024},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(resp.Images) != 1 || resp.Images[0].URL != "https://images.example/1.png" {
		t.Fatalf("Unexpected images %+v", resp.Images)
	}
	if resp.Images[0].Tier != types.ImageTier1K {
		t.Errorf("Expected 1k tier, got %s", resp.Images[0].Tier)
	}
	if captured["size"] != "1792x1024" {
		t.Errorf("Expected landscape size, got %v", captured["size"])
	}
}

func TestOpenAIProvider_ImagesUnsupportedForCompatible(t *testing.T) {
	provider := createTestProvider(t, types.ProviderMistral, "http://127.0.0.1:1")
	if provider.SupportsImages() {
		t.Error("Mistral should not advertise images")
	}

	_, err := provider.Generate(context.Background(), "mistral-small-latest", &types.GenerationRequest{
		Prompt: "a lighthouse",
		Image:  &types.ImageSpec{Width: 1024, Height: 1024},
	})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.Kind != providers.KindUnsupported {
		t.Errorf("Expected unsupported error, got %v", err)
	}
}

func TestNewOpenAIProvider_Compatibility(t *testing.T) {
	for _, p := range []types.ProviderID{types.ProviderOpenAI, types.ProviderGroq, types.ProviderDeepSeek, types.ProviderMistral, types.ProviderQwen, types.ProviderHuggingFace} {
		if !Compatible(p) {
			t.Errorf("%s should be OpenAI-compatible", p)
		}
	}

	if _, err := NewOpenAIProvider(&OpenAIConfig{Provider: types.ProviderAnthropic, APIKey: "k"}, testLogger()); err == nil {
		t.Error("Expected error for non-compatible provider")
	}
}

func TestImageSize(t *testing.T) {
	tests := []struct {
		model         string
		width, height int
		want          string
	}{
		{"dall-e-3", 1024, 1024, "1024x1024"},
		{"dall-e-3", 1024, 1792, "1024x1792"},
		{"gpt-image-1", 1600, 900, "1536x1024"},
		{"gpt-image-1", 900, 1600, "1024x1536"},
		{"dall-e-2", 300, 200, "1024x1024"},
	}
	for _, tt := range tests {
		if got := imageSize(tt.model, tt.width, tt.height); got != tt.want {
			t.Errorf("imageSize(%s, %d, %d) = %s, want %s", tt.model, tt.width, tt.height, got, tt.want)
		}
	}
}

// Helper functions
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise during tests
	return logger
}

func createTestProvider(t *testing.T, provider types.ProviderID, baseURL string) *OpenAIProvider {
	t.Helper()

	p, err := NewOpenAIProvider(&OpenAIConfig{
		Provider: provider,
		APIKey:   "test-key",
		BaseURL:  baseURL,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}
	return p
}
