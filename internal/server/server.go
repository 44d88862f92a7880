package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/catalog"
	"github.com/tributary-ai/content-orchestrator/internal/cost"
	"github.com/tributary-ai/content-orchestrator/internal/execution"
	"github.com/tributary-ai/content-orchestrator/internal/middleware"
	"github.com/tributary-ai/content-orchestrator/internal/orchestrator"
	"github.com/tributary-ai/content-orchestrator/internal/repair"
	"github.com/tributary-ai/content-orchestrator/internal/routing"
	"github.com/tributary-ai/content-orchestrator/internal/security"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Server represents the HTTP server
type Server struct {
	orchestrator       *orchestrator.Orchestrator
	catalog            *catalog.Catalog
	availability       routing.AvailabilitySource
	accountant         *cost.Accountant
	sharedCosts        SharedCostReader
	gatherer           prometheus.Gatherer
	httpServer         *http.Server
	handler            http.Handler
	logger             *logrus.Logger
	config             *ServerConfig
	securityMiddleware *middleware.SecurityMiddleware
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string                               `yaml:"port"`
	ReadTimeout    time.Duration                        `yaml:"read_timeout"`
	WriteTimeout   time.Duration                        `yaml:"write_timeout"`
	MaxHeaderBytes int                                  `yaml:"max_header_bytes"`
	MetricsPath    string                               `yaml:"metrics_path"`
	Security       *middleware.SecurityMiddlewareConfig `yaml:"security"`
}

// Dependencies are the components the HTTP API exposes
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Catalog      *catalog.Catalog
	Availability routing.AvailabilitySource
	Accountant   *cost.Accountant

	// SharedCosts reads spend recorded by every replica; nil when usage is not mirrored
	SharedCosts SharedCostReader

	// Gatherer backs the metrics endpoint; nil disables it
	Gatherer prometheus.Gatherer
}

// SharedCostReader reads per-provider spend for a UTC day from shared storage
type SharedCostReader interface {
	DailyTotals(ctx context.Context, day time.Time) (map[types.ProviderID]float64, error)
}

// ProviderStatus describes one provider for the management endpoints
type ProviderStatus struct {
	Provider  types.ProviderID        `json:"provider"`
	Available bool                    `json:"available"`
	DailyCost float64                 `json:"daily_cost"`
	Models    []types.ProviderProfile `json:"models"`
}

type routeRequest struct {
	Task    string `json:"task"`
	Profile string `json:"profile,omitempty"`
}

// NewServer creates a new server instance
func NewServer(deps Dependencies, config *ServerConfig, logger *logrus.Logger) *Server {
	server := &Server{
		orchestrator: deps.Orchestrator,
		catalog:      deps.Catalog,
		availability: deps.Availability,
		accountant:   deps.Accountant,
		sharedCosts:  deps.SharedCosts,
		gatherer:     deps.Gatherer,
		logger:       logger,
		config:       config,
	}

	if config.Security != nil {
		server.securityMiddleware = middleware.NewSecurityMiddleware(config.Security, logger)
	}

	server.handler = server.buildHandler()
	return server
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting content orchestrator server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping content orchestrator server")

	if s.securityMiddleware != nil {
		s.securityMiddleware.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// buildHandler wraps the router so security runs before route matching,
// letting preflight and unauthenticated requests be answered uniformly
func (s *Server) buildHandler() http.Handler {
	var handler http.Handler = s.setupRoutes()
	if s.securityMiddleware != nil {
		handler = s.securityMiddleware.Handler()(handler)
	}
	return s.loggingMiddleware(handler)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.contentTypeMiddleware)

	api := r.PathPrefix("/v1").Subrouter()

	// Generation
	api.HandleFunc("/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/route", s.handleRoute).Methods("POST")

	// Provider management
	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{name}", s.handleGetProvider).Methods("GET")

	// Cost accounting
	api.HandleFunc("/costs", s.handleCosts).Methods("GET")
	api.HandleFunc("/costs/providers", s.handleProviderCosts).Methods("GET")
	api.HandleFunc("/costs/reset", s.handleResetCosts).Methods("POST")
	api.HandleFunc("/usage", s.handleUsage).Methods("GET")

	api.HandleFunc("/auth/token", s.handleIssueToken).Methods("POST")

	r.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	if s.gatherer != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Capture the status code for the access log
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  r.Header.Get(middleware.RequestIDHeader),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "invalid_request_error", "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

// handleGenerate runs one logical generation request
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	if id := r.Header.Get(middleware.RequestIDHeader); id != "" {
		req.Metadata["http_request_id"] = id
	}
	if p, ok := security.PrincipalFrom(r.Context()); ok {
		req.Metadata["principal"] = p.ID
	}

	resp, err := s.orchestrator.Generate(r.Context(), &req)
	if err != nil {
		s.writeGenerateError(w, resp, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleRoute returns the routing decision without executing it
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	task, err := routing.ParseTask(req.Task)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	var profile routing.Profile
	if req.Profile != "" {
		if profile, err = routing.ParseProfile(req.Profile); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", err.Error())
			return
		}
	}

	route, err := s.orchestrator.Route(task, profile)
	if err != nil {
		s.writeGenerateError(w, nil, err)
		return
	}

	s.writeJSON(w, http.StatusOK, route)
}

// handleListProviders lists every catalog provider with its availability
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	snapshot := s.availability.Get()

	providers := make([]ProviderStatus, 0)
	for _, id := range s.catalog.Providers() {
		providers = append(providers, s.providerStatus(id, snapshot.IsAvailable(id)))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
		"available": len(snapshot.Available()),
	})
}

// handleGetProvider gets information about a specific provider
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	id, ok := types.ParseProviderID(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found_error", fmt.Sprintf("Provider %s not found", name))
		return
	}

	s.writeJSON(w, http.StatusOK, s.providerStatus(id, s.availability.Get().IsAvailable(id)))
}

func (s *Server) providerStatus(id types.ProviderID, available bool) ProviderStatus {
	return ProviderStatus{
		Provider:  id,
		Available: available,
		DailyCost: s.accountant.DailyCost(id),
		Models:    s.catalog.ListModelsForProvider(id),
	}
}

// handleCosts returns the session total and today's per-provider spend. With a
// shared store configured, the spend of every replica is reported as shared_daily.
func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	body := map[string]interface{}{
		"currency":     "USD",
		"session_cost": s.accountant.SessionCost(),
		"daily":        s.accountant.DailyTotals(),
		"timestamp":    now.Unix(),
	}

	if s.sharedCosts != nil {
		shared, err := s.sharedCosts.DailyTotals(r.Context(), now)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read shared daily costs")
		} else {
			body["shared_daily"] = shared
		}
	}

	s.writeJSON(w, http.StatusOK, body)
}

// handleProviderCosts returns calls and spend grouped by provider
func (s *Server) handleProviderCosts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.accountant.SummarizeByProvider(),
	})
}

// handleResetCosts zeroes the session total
func (s *Server) handleResetCosts(w http.ResponseWriter, r *http.Request) {
	s.accountant.ResetSession()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_cost": s.accountant.SessionCost(),
	})
}

// handleUsage returns the usage log, optionally only the most recent entries
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	records := s.accountant.UsageLog()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", "limit must be a non-negative integer")
			return
		}
		if limit < len(records) {
			records = records[len(records)-limit:]
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage": records,
		"count": len(records),
	})
}

// handleIssueToken exchanges an authenticated API key for a short-lived JWT
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if s.securityMiddleware == nil || s.securityMiddleware.Authenticator() == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found_error", "authentication is not enabled")
		return
	}

	principal, ok := security.PrincipalFrom(r.Context())
	if !ok || principal.AuthType != "api_key" {
		s.writeErrorResponse(w, http.StatusForbidden, "permission_error", "tokens can only be issued to API key holders")
		return
	}

	token, err := s.securityMiddleware.Authenticator().IssueJWT(principal.ID)
	if err != nil {
		s.writeErrorResponse(w, http.StatusNotImplemented, "api_error", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"token_type": "Bearer",
	})
}

// handleHealthCheck reports healthy while at least one provider is configured
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	snapshot := s.availability.Get()

	status := "healthy"
	statusCode := http.StatusOK
	if !snapshot.Any() {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"providers": snapshot.Available(),
		"timestamp": time.Now().Unix(),
	})
}

// Helper functions

// writeGenerateError maps orchestration failures to HTTP statuses
func (s *Server) writeGenerateError(w http.ResponseWriter, resp *orchestrator.Response, err error) {
	detail := types.ErrorDetail{Message: err.Error(), Type: "api_error"}
	status := http.StatusInternalServerError

	var cascadeErr *execution.CascadeError
	var formatErr *orchestrator.OutputFormatError
	var parseErr *repair.ParseError

	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest), errors.Is(err, routing.ErrUnknownTask):
		status, detail.Type = http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, routing.ErrNoProviderConfigured):
		status, detail.Type = http.StatusServiceUnavailable, "no_provider_configured"
	case errors.Is(err, context.DeadlineExceeded):
		status, detail.Type = http.StatusGatewayTimeout, "timeout_error"
		if errors.As(err, &cascadeErr) {
			detail.Attempts = cascadeErr.Attempts
		}
	case errors.As(err, &cascadeErr):
		status, detail.Type = http.StatusBadGateway, "provider_error"
		detail.Attempts = cascadeErr.Attempts
	case errors.As(err, &formatErr):
		status, detail.Type = http.StatusUnprocessableEntity, "output_format_error"
		detail.Attempts = formatErr.Attempts
		if errors.As(err, &parseErr) {
			offset := parseErr.Offset
			detail.Offset = &offset
			detail.Window = parseErr.Window
		}
	}

	detail.Code = status

	fields := logrus.Fields{"status": status, "type": detail.Type}
	if resp != nil {
		fields["request_id"] = resp.RequestID
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(fields).Error("Generation failed")
	} else {
		s.logger.WithError(err).WithFields(fields).Warn("Generation rejected")
	}

	s.writeJSON(w, status, types.ErrorResponse{Error: detail})
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errType, message string) {
	s.writeJSON(w, statusCode, types.ErrorResponse{
		Error: types.ErrorDetail{
			Message: message,
			Type:    errType,
			Code:    statusCode,
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
