package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/security"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// SecurityMiddlewareConfig holds configuration for security middleware
type SecurityMiddlewareConfig struct {
	Auth           *security.AuthConfig      `yaml:"auth"`
	RateLimit      *security.RateLimitConfig `yaml:"rate_limit"`
	MaxRequestSize int64                     `yaml:"max_request_size"`
	AllowedOrigins []string                  `yaml:"allowed_origins"`
}

// SecurityMiddleware combines all security middleware components
type SecurityMiddleware struct {
	config        *SecurityMiddlewareConfig
	authenticator *security.Authenticator
	limiter       *security.KeyedLimiter
	logger        *logrus.Logger
}

// NewSecurityMiddleware creates a new security middleware stack
func NewSecurityMiddleware(config *SecurityMiddlewareConfig, logger *logrus.Logger) *SecurityMiddleware {
	s := &SecurityMiddleware{config: config, logger: logger}

	if config.Auth != nil && config.Auth.Enabled() {
		s.authenticator = security.NewAuthenticator(config.Auth, logger)
	}
	if config.RateLimit != nil && config.RateLimit.Enabled {
		s.limiter = security.NewKeyedLimiter(config.RateLimit, logger)
	}
	return s
}

// Authenticator returns the configured authenticator, nil when auth is off
func (s *SecurityMiddleware) Authenticator() *security.Authenticator {
	return s.authenticator
}

// Handler creates the complete security middleware chain
func (s *SecurityMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// Built innermost first
		handler := next

		// Rate limiting runs after auth so principals get their own bucket
		if s.limiter != nil {
			handler = s.limiter.Middleware()(handler)
		}
		if s.authenticator != nil {
			handler = s.authenticator.Middleware()(handler)
		}
		if s.config.MaxRequestSize > 0 {
			handler = maxBytes(s.config.MaxRequestSize)(handler)
		}
		handler = cors(s.config.AllowedOrigins)(handler)
		handler = requestID(handler)
		handler = securityHeaders(handler)

		return handler
	}
}

// Stop gracefully stops all middleware components
func (s *SecurityMiddleware) Stop() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func maxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// cors allows the listed origins; "*" allows any
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
