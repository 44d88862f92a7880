package execution

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tributary-ai/content-orchestrator/internal/providers"
)

// RetryPolicy bounds rate-limit retries against a single candidate
type RetryPolicy struct {
	// Total calls per candidate, including the first
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay applies when the provider gives no retry-after hint
	BaseDelay time.Duration `yaml:"base_delay"`
	// MaxDelay caps both computed delays and provider hints
	MaxDelay time.Duration `yaml:"max_delay"`
	// BackoffType is "exponential", "linear" or "fixed"
	BackoffType string `yaml:"backoff_type"`
}

// DefaultRetryPolicy returns the built-in retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		BackoffType: "exponential",
	}
}

// Validate checks the policy is bounded
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if p.MaxDelay == 0 {
		return fmt.Errorf("max_delay must be set")
	}
	switch p.BackoffType {
	case "", "exponential", "linear", "fixed":
	default:
		return fmt.Errorf("invalid backoff type: %s", p.BackoffType)
	}
	return nil
}

// Delay returns how long to wait before retry number attempt (0-based), honoring
// a provider hint in err when present
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	if hint, ok := ParseRetryAfter(err); ok {
		return p.cap(hint)
	}
	return p.calculateBackoffDelay(attempt)
}

func (p RetryPolicy) calculateBackoffDelay(attempt int) time.Duration {
	var delay time.Duration

	switch p.BackoffType {
	case "linear":
		delay = time.Duration(int64(p.BaseDelay) * int64(attempt+1))
	case "fixed":
		delay = p.BaseDelay
	default:
		multiplier := math.Pow(2, float64(attempt))
		delay = time.Duration(float64(p.BaseDelay) * multiplier)
	}

	return p.cap(delay)
}

func (p RetryPolicy) cap(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}

var rateLimitSignatures = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate_limit",
	"ratelimit",
	"resource exhausted",
	"resource_exhausted",
	"quota",
}

// IsRateLimited reports whether err is a transient rate-limit failure. Tagged
// provider errors decide by kind; everything else falls back to message inspection.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == providers.KindRateLimit
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

var retryAfterPatterns = []*regexp.Regexp{
	// "Retry-After: 12", "retry after 1.5s"
	regexp.MustCompile(`(?i)retry[-_ ]after[:=\s"]*(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds?)?`),
	// OpenAI-style "Please try again in 6.5s" / "in 820ms"
	regexp.MustCompile(`(?i)try again in\s*(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds?)`),
	// Gemini RetryInfo "retryDelay": "37s"
	regexp.MustCompile(`(?i)retry_?delay["']?\s*[:=]\s*["']?(\d+(?:\.\d+)?)(ms|s)`),
}

// ParseRetryAfter extracts the provider's retry-after hint from err, if any
func ParseRetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var pe *providers.ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}

	msg := err.Error()
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		value, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil {
			continue
		}
		unit := time.Second
		if strings.EqualFold(m[2], "ms") {
			unit = time.Millisecond
		}
		return time.Duration(value * float64(unit)), true
	}
	return 0, false
}
