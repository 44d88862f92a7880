package execution

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Pacer spaces outbound calls per provider to stay under configured request quotas
type Pacer struct {
	mu       sync.RWMutex
	limiters map[types.ProviderID]*rate.Limiter
}

// NewPacer creates a pacer from requests-per-minute settings. Providers with a
// non-positive limit are not paced.
func NewPacer(requestsPerMinute map[types.ProviderID]int) *Pacer {
	p := &Pacer{limiters: make(map[types.ProviderID]*rate.Limiter)}
	for provider, rpm := range requestsPerMinute {
		p.SetLimit(provider, rpm)
	}
	return p
}

// SetLimit installs or removes the limit for a provider
func (p *Pacer) SetLimit(provider types.ProviderID, requestsPerMinute int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if requestsPerMinute <= 0 {
		delete(p.limiters, provider)
		return
	}

	// Allow burst of 10% of per-minute limit
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	p.limiters[provider] = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

// Wait blocks until the provider's limiter admits one call
func (p *Pacer) Wait(ctx context.Context, provider types.ProviderID) error {
	if p == nil {
		return nil
	}

	p.mu.RLock()
	limiter, ok := p.limiters[provider]
	p.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer %s: %w", provider, err)
	}
	return nil
}
