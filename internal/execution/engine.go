package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/metrics"
	"github.com/tributary-ai/content-orchestrator/internal/providers"
	"github.com/tributary-ai/content-orchestrator/internal/routing"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// ErrCascadeExhausted means every candidate in the route failed
var ErrCascadeExhausted = errors.New("all providers failed")

// CascadeError carries the full attempt history of a failed cascade
type CascadeError struct {
	Attempts []types.CascadeAttempt
	Err      error
}

func (e *CascadeError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", a.Provider, a.Model, a.Error))
	}
	return fmt.Sprintf("%v after %d attempts [%s]", e.Err, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// AdapterSource resolves a provider to its adapter
type AdapterSource interface {
	Get(provider types.ProviderID) (providers.Adapter, bool)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine executes a route: candidates are tried strictly in order, rate-limited
// candidates are retried with bounded backoff, other failures cascade immediately
type Engine struct {
	adapters AdapterSource
	policy   RetryPolicy
	pacer    *Pacer
	metrics  *metrics.Recorder
	sleep    SleepFunc
	logger   *logrus.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithPacer paces calls per provider
func WithPacer(p *Pacer) Option {
	return func(e *Engine) { e.pacer = p }
}

// WithMetrics records attempts and cascade durations
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithSleep replaces the backoff wait
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine creates a new execution engine
func NewEngine(adapters AdapterSource, policy RetryPolicy, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	e := &Engine{
		adapters: adapters,
		policy:   policy,
		sleep:    contextSleep,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs the cascade for one logical request. On failure the returned
// result still carries every attempt and the error is a *CascadeError.
func (e *Engine) Execute(ctx context.Context, route *routing.SelectedRoute, req *types.GenerationRequest) (*types.GenerationResult, error) {
	if route == nil {
		return nil, fmt.Errorf("route is required")
	}

	start := time.Now()
	result := &types.GenerationResult{RequestID: req.ID}
	candidates := route.Candidates()

	finish := func(outcome string) {
		result.Duration = time.Since(start)
		e.metrics.Cascade(string(route.Task), outcome, result.Duration)
	}

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			finish("canceled")
			return result, &CascadeError{Attempts: result.Attempts, Err: err}
		}

		attempt, resp, err := e.tryCandidate(ctx, candidate, req)
		result.Attempts = append(result.Attempts, attempt)

		outcome := "success"
		if err != nil {
			outcome = attempt.ErrorKind
		}
		e.metrics.Attempt(string(candidate.Provider), candidate.Model, outcome)

		if err == nil {
			result.Success = true
			result.Provider = candidate.Provider
			result.Model = candidate.Model
			result.Text = resp.Text
			result.Images = resp.Images
			result.InputTokens = resp.InputTokens
			result.OutputTokens = resp.OutputTokens
			result.CostOverride = resp.CostOverride
			finish("success")

			e.logger.WithFields(logrus.Fields{
				"request_id": req.ID,
				"task":       route.Task,
				"provider":   candidate.Provider,
				"model":      candidate.Model,
				"attempts":   len(result.Attempts),
				"duration":   result.Duration,
			}).Info("Generation succeeded")
			return result, nil
		}

		if ctx.Err() != nil {
			finish("canceled")
			return result, &CascadeError{Attempts: result.Attempts, Err: ctx.Err()}
		}

		if i < len(candidates)-1 {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"request_id": req.ID,
				"provider":   candidate.Provider,
				"model":      candidate.Model,
				"kind":       attempt.ErrorKind,
				"next":       candidates[i+1].Key(),
			}).Warn("Provider failed, trying fallback")
		}
	}

	finish("exhausted")
	e.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"task":       route.Task,
		"attempts":   len(result.Attempts),
	}).Error("All providers failed")

	return result, &CascadeError{Attempts: result.Attempts, Err: ErrCascadeExhausted}
}

// tryCandidate calls one candidate, retrying only rate-limit failures within the policy budget
func (e *Engine) tryCandidate(ctx context.Context, candidate types.ProviderProfile, req *types.GenerationRequest) (types.CascadeAttempt, *types.AdapterResponse, error) {
	attempt := types.CascadeAttempt{
		Provider: candidate.Provider,
		Model:    candidate.Model,
	}
	start := time.Now()
	fail := func(err error) (types.CascadeAttempt, *types.AdapterResponse, error) {
		attempt.Duration = time.Since(start)
		attempt.Error = err.Error()
		attempt.ErrorKind = string(errorKind(err))
		return attempt, nil, err
	}

	adapter, ok := e.adapters.Get(candidate.Provider)
	if !ok {
		return fail(providers.Unsupported(candidate.Provider, "provider adapter"))
	}
	if req.IsImage() && !providers.SupportsImages(adapter) {
		return fail(providers.Unsupported(candidate.Provider, "image generation"))
	}

	for try := 0; ; try++ {
		if err := e.pacer.Wait(ctx, candidate.Provider); err != nil {
			return fail(providers.NewError(candidate.Provider, providers.KindCanceled, 0, err))
		}

		resp, err := adapter.Generate(ctx, candidate.Model, req)
		if err == nil {
			attempt.Success = true
			attempt.Duration = time.Since(start)
			return attempt, resp, nil
		}

		if !IsRateLimited(err) || try+1 >= e.policy.MaxAttempts || ctx.Err() != nil {
			return fail(err)
		}

		delay := e.policy.Delay(try, err)
		e.metrics.RateLimitRetry(string(candidate.Provider))
		e.logger.WithFields(logrus.Fields{
			"provider": candidate.Provider,
			"model":    candidate.Model,
			"retry":    try + 1,
			"delay_ms": delay.Milliseconds(),
		}).Warn("Rate limited, retrying after backoff")

		if serr := e.sleep(ctx, delay); serr != nil {
			return fail(providers.NewError(candidate.Provider, providers.KindCanceled, 0, serr))
		}
		attempt.Retries++
	}
}

func errorKind(err error) providers.ErrorKind {
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return providers.KindCanceled
	}
	if IsRateLimited(err) {
		return providers.KindRateLimit
	}
	return providers.KindNetwork
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("request cancelled during retry backoff: %w", ctx.Err())
	}
}
