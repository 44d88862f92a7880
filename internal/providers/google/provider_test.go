package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

func TestGoogleProvider_Generate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "[1,2,3]"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 14, "candidatesTokenCount": 6, "totalTokenCount": 20}
		}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, server.URL)
	resp, err := provider.Generate(context.Background(), "gemini-2.5-flash", &types.GenerationRequest{
		Prompt:       "List three numbers",
		SystemPrompt: "Answer in JSON",
		MaxTokens:    64,
		JSONOutput:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, "[1,2,3]", resp.Text)
	assert.Equal(t, 14, resp.InputTokens)
	assert.Equal(t, 6, resp.OutputTokens)

	genCfg, _ := captured["generationConfig"].(map[string]interface{})
	assert.Equal(t, float64(64), genCfg["maxOutputTokens"])
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
	assert.NotNil(t, captured["systemInstruction"])
}

func TestGoogleProvider_ResourceExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Resource has been exhausted (e.g. check quota).", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	provider := createTestProvider(t, server.URL)
	_, err := provider.Generate(context.Background(), "gemini-2.5-pro", &types.GenerationRequest{Prompt: "hi"})

	var pe *providers.ProviderError
	require.True(t, errors.As(err, &pe), "expected ProviderError, got %v", err)
	assert.Equal(t, providers.KindRateLimit, pe.Kind)
	assert.Equal(t, 429, pe.StatusCode)
}

func TestGoogleProvider_RejectsImages(t *testing.T) {
	provider := createTestProvider(t, "http://127.0.0.1:1")

	_, err := provider.Generate(context.Background(), "gemini-2.5-flash", &types.GenerationRequest{
		Prompt: "draw",
		Image:  &types.ImageSpec{Width: 512, Height: 512},
	})
	var pe *providers.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, providers.KindUnsupported, pe.Kind)
}

func TestBuildConfig(t *testing.T) {
	temp := float32(0.2)
	cfg := buildConfig(&types.GenerationRequest{Prompt: "x", Temperature: &temp})

	assert.Nil(t, cfg.SystemInstruction)
	assert.Equal(t, int32(0), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(0.2), *cfg.Temperature)
	assert.Empty(t, cfg.ResponseMIMEType)
}

func createTestProvider(t *testing.T, baseURL string) *GoogleProvider {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	p, err := NewGoogleProvider(context.Background(), &GoogleConfig{
		APIKey:  "test-key",
		BaseURL: baseURL + "/",
	}, logger)
	require.NoError(t, err)
	return p
}
