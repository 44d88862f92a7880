// Package metrics exposes Prometheus counters for cascades, retries, tokens and spend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the orchestrator's collectors. A nil *Recorder records nothing.
type Recorder struct {
	ProviderAttempts *prometheus.CounterVec
	RateLimitRetries *prometheus.CounterVec
	CascadeDuration  *prometheus.HistogramVec
	CostUSD          *prometheus.CounterVec
	Tokens           *prometheus.CounterVec
}

// NewRecorder registers all collectors on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		ProviderAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_provider_attempts_total",
				Help: "Provider calls per candidate, by outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		RateLimitRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_rate_limit_retries_total",
				Help: "Retries of the same candidate after a rate-limit error",
			},
			[]string{"provider"},
		),
		CascadeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_cascade_duration_seconds",
				Help:    "Wall time of a full cascade",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"task", "outcome"},
		),
		CostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_cost_usd_total",
				Help: "Recorded spend in USD",
			},
			[]string{"provider"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_tokens_total",
				Help: "Tokens consumed, by direction",
			},
			[]string{"provider", "direction"},
		),
	}
}

// Attempt counts one candidate outcome ("success" or an error kind)
func (r *Recorder) Attempt(provider, model, outcome string) {
	if r == nil {
		return
	}
	r.ProviderAttempts.WithLabelValues(provider, model, outcome).Inc()
}

// RateLimitRetry counts one same-candidate retry
func (r *Recorder) RateLimitRetry(provider string) {
	if r == nil {
		return
	}
	r.RateLimitRetries.WithLabelValues(provider).Inc()
}

// Cascade observes a finished cascade
func (r *Recorder) Cascade(task, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.CascadeDuration.WithLabelValues(task, outcome).Observe(d.Seconds())
}

// Usage adds tokens and spend for one recorded call
func (r *Recorder) Usage(provider string, inputTokens, outputTokens int, cost float64) {
	if r == nil {
		return
	}
	r.Tokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	r.Tokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	if cost > 0 {
		r.CostUSD.WithLabelValues(provider).Add(cost)
	}
}
