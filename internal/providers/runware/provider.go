// Package runware adapts the Runware image inference API. Runware has no Go SDK,
// so the adapter speaks its JSON task protocol directly.
package runware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

const defaultBaseURL = "https://api.runware.ai/v1"

// RunwareConfig holds Runware configuration
type RunwareConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RunwareProvider generates images through imageInference tasks
type RunwareProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewRunwareProvider creates a new Runware adapter
func NewRunwareProvider(config *RunwareConfig, logger *logrus.Logger) *RunwareProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &RunwareProvider{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Provider returns the provider name
func (p *RunwareProvider) Provider() types.ProviderID {
	return types.ProviderRunware
}

// SupportsImages is always true
func (p *RunwareProvider) SupportsImages() bool {
	return true
}

type inferenceTask struct {
	TaskType       string  `json:"taskType"`
	TaskUUID       string  `json:"taskUUID"`
	PositivePrompt string  `json:"positivePrompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Model          string  `json:"model"`
	NumberResults  int     `json:"numberResults"`
	OutputType     string  `json:"outputType"`
	IncludeCost    bool    `json:"includeCost"`
	CFGScale       float64 `json:"CFGScale,omitempty"`
}

type inferenceResponse struct {
	Data []struct {
		TaskUUID string   `json:"taskUUID"`
		ImageURL string   `json:"imageURL"`
		Cost     *float64 `json:"cost"`
	} `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Generate runs one imageInference task. Text requests are rejected.
func (p *RunwareProvider) Generate(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
	if !req.IsImage() {
		return nil, providers.Unsupported(types.ProviderRunware, "text generation")
	}

	spec := req.Image
	width, height := dimensions(spec.Width, spec.Height)
	task := inferenceTask{
		TaskType:       "imageInference",
		TaskUUID:       uuid.New().String(),
		PositivePrompt: req.Prompt,
		Width:          width,
		Height:         height,
		Model:          model,
		NumberResults:  spec.ResolvedCount(),
		OutputType:     "URL",
		IncludeCost:    true,
	}

	body, err := json.Marshal([]inferenceTask{task})
	if err != nil {
		return nil, providers.NewError(types.ProviderRunware, providers.KindMalformed, 0,
			fmt.Errorf("failed to marshal runware task: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(types.ProviderRunware, providers.KindMalformed, 0,
			fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.WithError(err).WithField("model", model).Warn("Runware request failed")
		return nil, providers.NewError(types.ProviderRunware, providers.KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewError(types.ProviderRunware, providers.KindNetwork, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		pe := providers.NewError(types.ProviderRunware, providers.KindFromStatus(resp.StatusCode), resp.StatusCode,
			fmt.Errorf("runware returned %s: %s", resp.Status, truncate(raw, 200)))
		pe.RetryAfter = providers.ParseRetryAfterHeader(resp.Header, time.Now())
		return nil, pe
	}

	var decoded inferenceResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, providers.Malformed(types.ProviderRunware, "invalid response body: %v", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, providers.Malformed(types.ProviderRunware, "task error %s: %s", decoded.Errors[0].Code, decoded.Errors[0].Message)
	}
	if len(decoded.Data) == 0 {
		return nil, providers.Malformed(types.ProviderRunware, "response contained no images")
	}

	tier := spec.ResolvedTier()
	out := &types.AdapterResponse{}
	var cost float64
	costReported := false
	for _, d := range decoded.Data {
		out.Images = append(out.Images, types.GeneratedImage{
			URL:    d.ImageURL,
			Width:  width,
			Height: height,
			Tier:   tier,
		})
		if d.Cost != nil {
			cost += *d.Cost
			costReported = true
		}
	}
	// The billed amount replaces catalog pricing when Runware reports it
	if costReported {
		out.CostOverride = &cost
	}

	p.logger.WithFields(logrus.Fields{
		"model":  model,
		"images": len(out.Images),
		"cost":   cost,
	}).Debug("Runware images generated")

	return out, nil
}

// dimensions rounds to multiples of 64 within the accepted 128..2048 range
func dimensions(width, height int) (int, int) {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	return clamp64(width), clamp64(height)
}

func clamp64(v int) int {
	v = (v + 32) / 64 * 64
	if v < 128 {
		return 128
	}
	if v > 2048 {
		return 2048
	}
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
