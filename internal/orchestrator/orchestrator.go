// Package orchestrator ties routing, execution, cost accounting and output repair
// into a single Generate call.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/cost"
	"github.com/tributary-ai/content-orchestrator/internal/execution"
	"github.com/tributary-ai/content-orchestrator/internal/repair"
	"github.com/tributary-ai/content-orchestrator/internal/routing"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// ErrInvalidRequest marks caller mistakes detected before routing
var ErrInvalidRequest = errors.New("invalid request")

// OutputFormatError means the winning provider answered but its text could not
// be turned into JSON matching the requested schema
type OutputFormatError struct {
	Provider types.ProviderID
	Model    string
	Attempts []types.CascadeAttempt
	Raw      string
	Err      error
}

func (e *OutputFormatError) Error() string {
	return fmt.Sprintf("output from %s/%s is not usable JSON: %v", e.Provider, e.Model, e.Err)
}

func (e *OutputFormatError) Unwrap() error {
	return e.Err
}

// Request is one logical generation request
type Request struct {
	Task         routing.TaskType  `json:"task"`
	Profile      routing.Profile   `json:"profile,omitempty"`
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	Temperature  *float32          `json:"temperature,omitempty"`
	Image        *types.ImageSpec  `json:"image,omitempty"`
	Schema       json.RawMessage   `json:"schema,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Response is the outcome of Generate. On cascade failure Result still carries
// every attempt.
type Response struct {
	RequestID string                  `json:"request_id"`
	Route     *routing.SelectedRoute  `json:"route,omitempty"`
	Result    *types.GenerationResult `json:"result,omitempty"`
	Usage     *types.UsageRecord      `json:"usage,omitempty"`

	// Repaired and validated JSON, set only when a schema was supplied
	Output json.RawMessage `json:"output,omitempty"`
}

// Orchestrator runs the route, execute, account, repair flow. It holds no per-call
// state of its own.
type Orchestrator struct {
	router     *routing.Router
	engine     *execution.Engine
	accountant *cost.Accountant
	repair     *repair.Pipeline
	timeout    time.Duration
	logger     *logrus.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRequestTimeout bounds each Generate call
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithRepairPipeline replaces the default repair pipeline
func WithRepairPipeline(p *repair.Pipeline) Option {
	return func(o *Orchestrator) { o.repair = p }
}

// New creates an orchestrator
func New(router *routing.Router, engine *execution.Engine, accountant *cost.Accountant, logger *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:     router,
		engine:     engine,
		accountant: accountant,
		repair:     repair.DefaultPipeline(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Route returns the routing decision for a task without executing it
func (o *Orchestrator) Route(task routing.TaskType, profile routing.Profile) (*routing.SelectedRoute, error) {
	if profile == "" {
		profile = o.router.DefaultProfile()
	}
	return o.router.SelectRoute(task, profile)
}

// Generate routes the request, runs the cascade, records usage and, when a schema
// is given, repairs and validates the output
func (o *Orchestrator) Generate(ctx context.Context, req *Request) (*Response, error) {
	schema, err := o.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp := &Response{RequestID: uuid.New().String()}

	route, err := o.Route(req.Task, req.Profile)
	if err != nil {
		return resp, fmt.Errorf("routing failed: %w", err)
	}
	resp.Route = route

	genReq := o.buildRequest(resp.RequestID, req, schema != nil)

	result, err := o.engine.Execute(ctx, route, genReq)
	resp.Result = result
	if err != nil {
		return resp, err
	}

	var tier types.ImageTier
	if genReq.Image != nil {
		tier = genReq.Image.ResolvedTier()
	}
	usage := o.accountant.RecordUsage(ctx, cost.UsageInput{
		Provider:     result.Provider,
		Model:        result.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Images:       result.ImageUsage(tier),
		CostOverride: result.CostOverride,
		Metadata:     usageMetadata(resp.RequestID, req),
	})
	resp.Usage = &usage

	if schema == nil {
		return resp, nil
	}

	output, err := o.structuredOutput(result, schema)
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": resp.RequestID,
			"provider":   result.Provider,
			"model":      result.Model,
		}).Warn("Structured output rejected")
		return resp, err
	}
	resp.Output = output
	return resp, nil
}

func (o *Orchestrator) validate(ctx context.Context, req *Request) (*openapi3.Schema, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if _, err := routing.ParseTask(string(req.Task)); err != nil {
		return nil, err
	}
	if req.Profile != "" {
		if _, err := routing.ParseProfile(string(req.Profile)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if req.Task.IsImage() && len(req.Schema) > 0 {
		return nil, fmt.Errorf("%w: image tasks cannot request structured output", ErrInvalidRequest)
	}
	if !req.Task.IsImage() && req.Image != nil {
		return nil, fmt.Errorf("%w: image options are only valid for image tasks", ErrInvalidRequest)
	}
	if len(req.Schema) == 0 {
		return nil, nil
	}

	schema, err := ParseSchema(ctx, req.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return schema, nil
}

func (o *Orchestrator) buildRequest(id string, req *Request, jsonOutput bool) *types.GenerationRequest {
	genReq := &types.GenerationRequest{
		ID:           id,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		JSONOutput:   jsonOutput,
		Image:        req.Image,
		Metadata:     req.Metadata,
		Timestamp:    time.Now(),
	}
	if req.Task.IsImage() && genReq.Image == nil {
		genReq.Image = &types.ImageSpec{Width: 1024, Height: 1024}
	}
	return genReq
}

func (o *Orchestrator) structuredOutput(result *types.GenerationResult, schema *openapi3.Schema) (json.RawMessage, error) {
	fail := func(err error) error {
		return &OutputFormatError{
			Provider: result.Provider,
			Model:    result.Model,
			Attempts: result.Attempts,
			Raw:      result.Text,
			Err:      err,
		}
	}

	candidate, err := o.repair.Sanitize(result.Text)
	if err != nil {
		return nil, fail(err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, fail(err)
	}
	if err := schema.VisitJSON(value); err != nil {
		return nil, fail(fmt.Errorf("schema validation failed: %w", err))
	}
	return json.RawMessage(candidate), nil
}

// ParseSchema decodes and checks a JSON Schema object in the OpenAPI 3 dialect
func ParseSchema(ctx context.Context, raw json.RawMessage) (*openapi3.Schema, error) {
	schema := openapi3.NewSchema()
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := schema.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

func usageMetadata(requestID string, req *Request) map[string]string {
	meta := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["request_id"] = requestID
	meta["task"] = string(req.Task)
	return meta
}
