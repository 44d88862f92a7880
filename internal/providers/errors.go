package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// ErrorKind classifies an adapter failure
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindServer      ErrorKind = "server"
	KindRateLimit   ErrorKind = "rate_limit"
	KindAuth        ErrorKind = "auth"
	KindMalformed   ErrorKind = "malformed"
	KindUnsupported ErrorKind = "unsupported"
	KindCanceled    ErrorKind = "canceled"
)

// ProviderError is the tagged failure returned by every adapter
type ProviderError struct {
	Provider   types.ProviderID
	Kind       ErrorKind
	StatusCode int
	// RetryAfter is the provider's explicit hint, zero when absent
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindFromStatus maps an HTTP status code to an error kind
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindMalformed
	default:
		return KindNetwork
	}
}

// NewError builds a ProviderError, classifying context cancellation before anything else
func NewError(provider types.ProviderID, kind ErrorKind, status int, err error) *ProviderError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	pe := &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
	if err != nil {
		pe.Message = err.Error()
	}
	return pe
}

// Malformed reports a response that decoded but carried no usable payload
func Malformed(provider types.ProviderID, format string, args ...interface{}) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindMalformed,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Unsupported reports a request kind the provider cannot serve
func Unsupported(provider types.ProviderID, what string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindUnsupported,
		Message:  what + " not supported",
	}
}

// ParseRetryAfterHeader reads a Retry-After header in seconds or HTTP-date form
func ParseRetryAfterHeader(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
