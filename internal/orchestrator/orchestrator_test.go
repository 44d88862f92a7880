package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/content-orchestrator/internal/availability"
	"github.com/tributary-ai/content-orchestrator/internal/catalog"
	"github.com/tributary-ai/content-orchestrator/internal/cost"
	"github.com/tributary-ai/content-orchestrator/internal/execution"
	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/repair"
	"github.com/tributary-ai/content-orchestrator/internal/routing"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

type fakeAdapter struct {
	id      types.ProviderID
	images  bool
	respond func(call int, model string, req *types.GenerationRequest) (*types.AdapterResponse, error)

	mu       sync.Mutex
	calls    int
	requests []*types.GenerationRequest
}

func (f *fakeAdapter) Provider() types.ProviderID { return f.id }

func (f *fakeAdapter) SupportsImages() bool { return f.images }

func (f *fakeAdapter) Generate(ctx context.Context, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(call, model, req)
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textReply(text string, in, out int) func(int, string, *types.GenerationRequest) (*types.AdapterResponse, error) {
	return func(int, string, *types.GenerationRequest) (*types.AdapterResponse, error) {
		return &types.AdapterResponse{Text: text, InputTokens: in, OutputTokens: out}, nil
	}
}

func failWith(kind providers.ErrorKind, status int) func(int, string, *types.GenerationRequest) (*types.AdapterResponse, error) {
	return func(_ int, _ string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
		return nil, providers.NewError(types.ProviderAnthropic, kind, status, errors.New("upstream said no"))
	}
}

type testEnv struct {
	orch       *Orchestrator
	accountant *cost.Accountant
}

func createTestOrchestrator(t *testing.T, adapters ...*fakeAdapter) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise during tests

	creds := make(map[types.ProviderID]string)
	registry := providers.NewRegistry(nil)
	for _, a := range adapters {
		creds[a.id] = "test-key"
		registry.Register(a)
	}

	cat := catalog.Default()
	detector := availability.NewDetector(cat.Providers(), availability.StaticCredentials(creds), logger)
	router, err := routing.NewRouter(cat, detector, nil, routing.ProfileDefault, logger)
	require.NoError(t, err)

	noSleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	engine, err := execution.NewEngine(registry, execution.DefaultRetryPolicy(), logger, execution.WithSleep(noSleep))
	require.NoError(t, err)

	accountant := cost.NewAccountant(cat, logger)
	return &testEnv{
		orch:       New(router, engine, accountant, logger),
		accountant: accountant,
	}
}

const articleSchema = `{
	"type": "object",
	"required": ["title", "body"],
	"properties": {
		"title": {"type": "string"},
		"body": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}}
	}
}`

func TestGenerate_RateLimitedPrimaryFallsBackAndRepairsOutput(t *testing.T) {
	anthropic := &fakeAdapter{id: types.ProviderAnthropic, respond: failWith(providers.KindRateLimit, 429)}
	google := &fakeAdapter{
		id:      types.ProviderGoogle,
		respond: textReply("Here it is:\n```json\n{\"title\": \"Hi\", \"body\": \"line1\nline2 with \"quote\" inside\",}\n```", 1_000_000, 0),
	}
	env := createTestOrchestrator(t, anthropic, google)

	resp, err := env.orch.Generate(context.Background(), &Request{
		Task:   routing.TaskContentGeneration,
		Prompt: "Write an article",
		Schema: json.RawMessage(articleSchema),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, anthropic.Calls(), "rate-limited primary uses its full retry budget")
	require.Len(t, resp.Result.Attempts, 2)
	assert.False(t, resp.Result.Attempts[0].Success)
	assert.Equal(t, string(providers.KindRateLimit), resp.Result.Attempts[0].ErrorKind)
	assert.Equal(t, 2, resp.Result.Attempts[0].Retries)
	assert.True(t, resp.Result.Attempts[1].Success)
	assert.Equal(t, types.ProviderGoogle, resp.Result.Provider)
	assert.Equal(t, "gemini-2.5-pro", resp.Result.Model)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Output, &out))
	assert.Equal(t, "Hi", out["title"])
	assert.Equal(t, "line1\nline2 with \"quote\" inside", out["body"])

	require.NotNil(t, resp.Usage)
	assert.Equal(t, 1.25, resp.Usage.TotalCost)
	assert.Equal(t, resp.RequestID, resp.Usage.Metadata["request_id"])
	assert.Equal(t, "content_generation", resp.Usage.Metadata["task"])
	assert.Equal(t, 1.25, env.accountant.SessionCost())

	require.Len(t, google.requests, 1)
	assert.True(t, google.requests[0].JSONOutput)
	assert.Equal(t, resp.RequestID, google.requests[0].ID)
}

func TestGenerate_PlainTextSkipsRepair(t *testing.T) {
	anthropic := &fakeAdapter{id: types.ProviderAnthropic, respond: textReply("not json {", 10, 20)}
	env := createTestOrchestrator(t, anthropic)

	resp, err := env.orch.Generate(context.Background(), &Request{
		Task:   routing.TaskGeneral,
		Prompt: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "not json {", resp.Result.Text)
	assert.Nil(t, resp.Output)
	assert.False(t, anthropic.requests[0].JSONOutput)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Result.Model)
}

func TestGenerate_NoProviderConfigured(t *testing.T) {
	env := createTestOrchestrator(t)

	_, err := env.orch.Generate(context.Background(), &Request{Task: routing.TaskGeneral, Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, routing.ErrNoProviderConfigured))
}

func TestGenerate_CascadeExhausted(t *testing.T) {
	anthropic := &fakeAdapter{id: types.ProviderAnthropic, respond: failWith(providers.KindServer, 500)}
	openai := &fakeAdapter{id: types.ProviderOpenAI, respond: failWith(providers.KindAuth, 401)}
	env := createTestOrchestrator(t, anthropic, openai)

	resp, err := env.orch.Generate(context.Background(), &Request{Task: routing.TaskContentGeneration, Prompt: "hi"})
	require.Error(t, err)

	var cascadeErr *execution.CascadeError
	require.True(t, errors.As(err, &cascadeErr))
	assert.True(t, errors.Is(err, execution.ErrCascadeExhausted))
	require.Len(t, cascadeErr.Attempts, 2)
	assert.Equal(t, types.ProviderAnthropic, cascadeErr.Attempts[0].Provider)
	assert.Equal(t, types.ProviderOpenAI, cascadeErr.Attempts[1].Provider)

	require.NotNil(t, resp)
	assert.False(t, resp.Result.Success)
	assert.Nil(t, resp.Usage)
	assert.Equal(t, 0.0, env.accountant.SessionCost(), "failed calls are not billed")
}

func TestGenerate_UnrepairableOutput(t *testing.T) {
	google := &fakeAdapter{id: types.ProviderGoogle, respond: textReply(`{"title": "ok", "body": {nope}}`, 100, 100)}
	env := createTestOrchestrator(t, google)

	resp, err := env.orch.Generate(context.Background(), &Request{
		Task:   routing.TaskContentGeneration,
		Prompt: "hi",
		Schema: json.RawMessage(articleSchema),
	})
	require.Error(t, err)

	var formatErr *OutputFormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, types.ProviderGoogle, formatErr.Provider)
	require.Len(t, formatErr.Attempts, 1)
	assert.True(t, formatErr.Attempts[0].Success)

	var parseErr *repair.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.NotEmpty(t, parseErr.Window)

	require.NotNil(t, resp.Usage, "the provider call still cost money")
	assert.Greater(t, env.accountant.SessionCost(), 0.0)
}

func TestGenerate_SchemaMismatch(t *testing.T) {
	google := &fakeAdapter{id: types.ProviderGoogle, respond: textReply(`{"title": 42}`, 1, 1)}
	env := createTestOrchestrator(t, google)

	_, err := env.orch.Generate(context.Background(), &Request{
		Task:   routing.TaskContentGeneration,
		Prompt: "hi",
		Schema: json.RawMessage(articleSchema),
	})

	var formatErr *OutputFormatError
	require.True(t, errors.As(err, &formatErr))
	var parseErr *repair.ParseError
	assert.False(t, errors.As(err, &parseErr), "valid JSON of the wrong shape is a schema failure")
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestGenerate_ImageWithProviderReportedCost(t *testing.T) {
	runware := &fakeAdapter{
		id:     types.ProviderRunware,
		images: true,
		respond: func(_ int, model string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
			reported := 0.0076
			return &types.AdapterResponse{
				Images: []types.GeneratedImage{
					{URL: "https://img/1.png", Width: req.Image.Width, Height: req.Image.Height},
					{URL: "https://img/2.png", Width: req.Image.Width, Height: req.Image.Height},
				},
				CostOverride: &reported,
			}, nil
		},
	}
	env := createTestOrchestrator(t, runware)

	resp, err := env.orch.Generate(context.Background(), &Request{
		Task:   routing.TaskImageConceptual,
		Prompt: "a lighthouse at dusk",
	})
	require.NoError(t, err)

	assert.Equal(t, "runware:101@1", resp.Result.Model)
	assert.Len(t, resp.Result.Images, 2)
	assert.Equal(t, 0.0076, resp.Usage.TotalCost)
	assert.Equal(t, 0.0, resp.Usage.ImageCost, "override replaces the computed components")

	require.NotNil(t, runware.requests[0].Image)
	assert.Equal(t, 1024, runware.requests[0].Image.Width)
}

func TestGenerate_ImageCostFromCatalog(t *testing.T) {
	runware := &fakeAdapter{
		id:     types.ProviderRunware,
		images: true,
		respond: func(int, string, *types.GenerationRequest) (*types.AdapterResponse, error) {
			return &types.AdapterResponse{Images: []types.GeneratedImage{{URL: "a"}, {URL: "b"}}}, nil
		},
	}
	env := createTestOrchestrator(t, runware)

	resp, err := env.orch.Generate(context.Background(), &Request{
		Task:   routing.TaskImageConceptual,
		Prompt: "a lighthouse",
		Image:  &types.ImageSpec{Width: 1024, Height: 1024, Count: 2},
	})
	require.NoError(t, err)
	assert.InDelta(t, 2*0.0038, resp.Usage.ImageCost, 1e-12)
}

func TestGenerate_InvalidRequests(t *testing.T) {
	env := createTestOrchestrator(t, &fakeAdapter{id: types.ProviderOpenAI, respond: textReply("{}", 1, 1)})

	tests := []struct {
		name string
		req  *Request
		is   error
	}{
		{"nil request", nil, ErrInvalidRequest},
		{"empty prompt", &Request{Task: routing.TaskGeneral, Prompt: "  "}, ErrInvalidRequest},
		{"unknown task", &Request{Task: "poetry", Prompt: "hi"}, routing.ErrUnknownTask},
		{"unknown profile", &Request{Task: routing.TaskGeneral, Prompt: "hi", Profile: "cheapest-please"}, ErrInvalidRequest},
		{"schema on image task", &Request{Task: routing.TaskImageHeader, Prompt: "hi", Schema: json.RawMessage(`{"type":"object"}`)}, ErrInvalidRequest},
		{"image options on text task", &Request{Task: routing.TaskGeneral, Prompt: "hi", Image: &types.ImageSpec{Width: 64}}, ErrInvalidRequest},
		{"malformed schema", &Request{Task: routing.TaskGeneral, Prompt: "hi", Schema: json.RawMessage(`{"type": `)}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.orch.Generate(context.Background(), tt.req)
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, tt.is), "got %v", err)
		})
	}
}

func TestGenerate_RequestTimeout(t *testing.T) {
	slow := &fakeAdapter{
		id: types.ProviderOpenAI,
		respond: func(_ int, _ string, req *types.GenerationRequest) (*types.AdapterResponse, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, providers.NewError(types.ProviderOpenAI, providers.KindNetwork, 0, context.DeadlineExceeded)
		},
	}
	env := createTestOrchestrator(t, slow)
	env.orch.timeout = 10 * time.Millisecond

	_, err := env.orch.Generate(context.Background(), &Request{Task: routing.TaskGeneral, Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRoute_UsesDefaultProfile(t *testing.T) {
	env := createTestOrchestrator(t,
		&fakeAdapter{id: types.ProviderOpenAI},
		&fakeAdapter{id: types.ProviderGoogle},
	)

	route, err := env.orch.Route(routing.TaskTranslation, "")
	require.NoError(t, err)
	assert.Equal(t, routing.ProfileDefault, route.Profile)
	assert.Equal(t, "gemini-2.5-flash", route.Primary.Model)
	require.Len(t, route.Fallbacks, 1)
	assert.Equal(t, "gpt-4o-mini", route.Fallbacks[0].Model)

	route, err = env.orch.Route(routing.TaskTranslation, routing.ProfileCostBalanced)
	require.NoError(t, err)
	assert.Equal(t, routing.ProfileCostBalanced, route.Profile)
	assert.Equal(t, "gemini-2.5-flash", route.Primary.Model)
	assert.Empty(t, route.Fallbacks)
}

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema(context.Background(), json.RawMessage(articleSchema))
	require.NoError(t, err)

	assert.NoError(t, schema.VisitJSON(map[string]interface{}{"title": "a", "body": "b"}))
	assert.Error(t, schema.VisitJSON(map[string]interface{}{"title": "a"}))

	_, err = ParseSchema(context.Background(), json.RawMessage(`[1, 2]`))
	assert.Error(t, err)
}
