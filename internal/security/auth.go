package security

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// ErrUnauthenticated is returned for missing or invalid credentials
var ErrUnauthenticated = errors.New("invalid authentication token")

const tokenIssuer = "content-orchestrator"

type contextKey string

const principalKey contextKey = "principal"

// Principal identifies the caller of an API request
type Principal struct {
	ID       string    `json:"id"`
	AuthType string    `json:"auth_type"`
	Scopes   []string  `json:"scopes,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
}

// Claims are the JWT claims accepted by the API
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys   []string      `yaml:"api_keys"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`

	// Paths served without credentials, matched by prefix
	PublicPaths []string `yaml:"public_paths"`
}

// Enabled reports whether any credential is configured
func (c *AuthConfig) Enabled() bool {
	return len(c.APIKeys) > 0 || c.JWTSecret != ""
}

// Authenticator validates static API keys and HMAC-signed JWTs
type Authenticator struct {
	config *AuthConfig
	logger *logrus.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(config *AuthConfig, logger *logrus.Logger) *Authenticator {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	return &Authenticator{config: config, logger: logger}
}

// Authenticate accepts either an API key or a JWT
func (a *Authenticator) Authenticate(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	if p, ok := a.matchAPIKey(token); ok {
		return p, nil
	}
	if a.config.JWTSecret == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := a.ValidateJWT(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	p := &Principal{ID: claims.Subject, AuthType: "jwt", Scopes: claims.Scopes}
	if claims.ExpiresAt != nil {
		p.Expires = claims.ExpiresAt.Time
	}
	return p, nil
}

func (a *Authenticator) matchAPIKey(token string) (*Principal, bool) {
	for _, key := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return &Principal{ID: keyID(token), AuthType: "api_key"}, true
		}
	}
	return nil, false
}

// IssueJWT signs a token for subject
func (a *Authenticator) IssueJWT(subject string, scopes ...string) (string, error) {
	if a.config.JWTSecret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.JWTExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.JWTSecret))
}

// ValidateJWT parses and verifies a token
func (a *Authenticator) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware rejects unauthenticated requests outside PublicPaths
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.config.Enabled() || a.isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := a.Authenticate(extractToken(r))
			if err != nil {
				a.logger.WithFields(logrus.Fields{
					"path":      r.URL.Path,
					"method":    r.Method,
					"remote_ip": ClientIP(r),
				}).Warn("Authentication failed")
				writeError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func (a *Authenticator) isPublic(path string) bool {
	for _, prefix := range a.config.PublicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// WithPrincipal stores the caller in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller stored by the auth middleware
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

// keyID derives a stable, non-reversible identifier for an API key
func keyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key_" + hex.EncodeToString(sum[:6])
}

// ClientIP returns the originating address, honoring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i != -1 {
		ip = ip[:i]
	}
	return ip
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
			"code":    status,
		},
	})
}
