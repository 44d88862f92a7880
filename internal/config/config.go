package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tributary-ai/content-orchestrator/internal/availability"
	"github.com/tributary-ai/content-orchestrator/internal/execution"
	"github.com/tributary-ai/content-orchestrator/internal/middleware"
	"github.com/tributary-ai/content-orchestrator/internal/routing"
	"github.com/tributary-ai/content-orchestrator/internal/security"
	"github.com/tributary-ai/content-orchestrator/internal/server"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig                        `yaml:"server"`
	Routing   RoutingConfig                       `yaml:"routing"`
	Execution ExecutionConfig                     `yaml:"execution"`
	Providers map[types.ProviderID]ProviderConfig `yaml:"providers"`
	Catalog   CatalogConfig                       `yaml:"catalog"`
	Cost      CostConfig                          `yaml:"cost"`
	Logging   LoggingConfig                       `yaml:"logging"`
	Security  SecurityConfig                      `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsPath     string        `yaml:"metrics_path"`
}

// RoutingConfig selects the active preference profile
type RoutingConfig struct {
	Profile         string        `yaml:"profile"`
	AvailabilityTTL time.Duration `yaml:"availability_ttl"`

	// Per profile and task: ordered "provider/model" entries replacing the built-in list
	Preferences map[string]map[string][]string `yaml:"preferences"`
}

// ExecutionConfig bounds each logical request
type ExecutionConfig struct {
	Retry          execution.RetryPolicy `yaml:"retry"`
	RequestTimeout time.Duration         `yaml:"request_timeout"`
}

// ProviderConfig configures one provider adapter
type ProviderConfig struct {
	APIKey            string        `yaml:"api_key"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	OrgID             string        `yaml:"org_id"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Disabled          bool          `yaml:"disabled"`
}

// CatalogConfig adds or replaces catalog entries
type CatalogConfig struct {
	Models []ModelOverride `yaml:"models"`
}

// ModelOverride is one priced model entry
type ModelOverride struct {
	Provider        types.ProviderID `yaml:"provider"`
	Model           string           `yaml:"model"`
	DisplayName     string           `yaml:"display_name"`
	InputPer1M      float64          `yaml:"input_per_1m"`
	OutputPer1M     float64          `yaml:"output_per_1m"`
	ImagePrice1K    float64          `yaml:"image_price_1k"`
	ImagePrice4K    float64          `yaml:"image_price_4k"`
	MaxOutputTokens int              `yaml:"max_output_tokens"`
	ContextWindow   int              `yaml:"context_window"`
	GeneratesImages bool             `yaml:"generates_images"`
	CostTier        types.CostTier   `yaml:"cost_tier"`
	SpeedTier       types.SpeedTier  `yaml:"speed_tier"`
}

// CostConfig configures the optional Redis usage mirror
type CostConfig struct {
	RedisURL   string        `yaml:"redis_url"`
	KeyPrefix  string        `yaml:"key_prefix"`
	DailyTTL   time.Duration `yaml:"daily_ttl"`
	MaxEntries int64         `yaml:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path

	// Rotation settings, used when Output is a file path
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	APIKeys        []string                 `yaml:"api_keys"`
	JWTSecret      string                   `yaml:"jwt_secret"`
	JWTExpiry      time.Duration            `yaml:"jwt_expiry"`
	RateLimiting   security.RateLimitConfig `yaml:"rate_limiting"`
	AllowedOrigins []string                 `yaml:"allowed_origins"`
	MaxRequestSize int64                    `yaml:"max_request_size"`
}

// DefaultCredentialEnv maps each provider to its credential variable
var DefaultCredentialEnv = map[types.ProviderID]string{
	types.ProviderOpenAI:      "OPENAI_API_KEY",
	types.ProviderAnthropic:   "ANTHROPIC_API_KEY",
	types.ProviderGoogle:      "GOOGLE_API_KEY",
	types.ProviderGroq:        "GROQ_API_KEY",
	types.ProviderMistral:     "MISTRAL_API_KEY",
	types.ProviderDeepSeek:    "DEEPSEEK_API_KEY",
	types.ProviderRunware:     "RUNWARE_API_KEY",
	types.ProviderHuggingFace: "HUGGINGFACE_API_KEY",
	types.ProviderQwen:        "QWEN_API_KEY",
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	// Set defaults
	config.setDefaults()

	// Load from file if provided
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.fillProviderDefaults()

	// Override with environment variables
	config.loadFromEnv()

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:            "8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		MaxHeaderBytes:  1 << 20, // 1MB
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
	}

	c.Routing = RoutingConfig{
		Profile:         string(routing.ProfileDefault),
		AvailabilityTTL: availability.DefaultTTL,
	}

	c.Execution = ExecutionConfig{
		Retry:          execution.DefaultRetryPolicy(),
		RequestTimeout: 4 * time.Minute,
	}

	c.Providers = make(map[types.ProviderID]ProviderConfig)
	for _, p := range types.AllProviders() {
		c.Providers[p] = ProviderConfig{Timeout: 120 * time.Second}
	}

	c.Cost = CostConfig{
		KeyPrefix:  "orchestrator",
		DailyTTL:   8 * 24 * time.Hour,
		MaxEntries: 100000,
	}

	c.Logging = LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}

	c.Security = SecurityConfig{
		APIKeys:   []string{},
		JWTExpiry: 24 * time.Hour,
		RateLimiting: security.RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			BurstSize:         10,
			IdleTTL:           10 * time.Minute,
			CleanupInterval:   5 * time.Minute,
		},
		AllowedOrigins: []string{"*"},
		MaxRequestSize: 10 << 20, // 10MB
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// fillProviderDefaults restores defaults for provider entries the file replaced
func (c *Config) fillProviderDefaults() {
	if c.Providers == nil {
		c.Providers = make(map[types.ProviderID]ProviderConfig)
	}
	for _, p := range types.AllProviders() {
		pc := c.Providers[p]
		if pc.Timeout == 0 {
			pc.Timeout = 120 * time.Second
		}
		c.Providers[p] = pc
	}
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("ORCHESTRATOR_PORT"); port != "" {
		c.Server.Port = port
	}

	if level := os.Getenv("ORCHESTRATOR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("ORCHESTRATOR_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if profile := os.Getenv("ORCHESTRATOR_ROUTING_PROFILE"); profile != "" {
		c.Routing.Profile = profile
	}

	if redisURL := os.Getenv("ORCHESTRATOR_REDIS_URL"); redisURL != "" {
		c.Cost.RedisURL = redisURL
	}

	if secret := os.Getenv("ORCHESTRATOR_JWT_SECRET"); secret != "" {
		c.Security.JWTSecret = secret
	}

	if keys := os.Getenv("ORCHESTRATOR_API_KEYS"); keys != "" {
		c.Security.APIKeys = splitList(keys)
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if _, err := routing.ParseProfile(c.Routing.Profile); err != nil {
		return err
	}
	if c.Routing.AvailabilityTTL < 0 {
		return fmt.Errorf("availability ttl cannot be negative")
	}
	if _, err := c.PreferenceTable(); err != nil {
		return err
	}

	if err := c.Execution.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	for id, p := range c.Providers {
		if _, ok := types.ParseProviderID(string(id)); !ok {
			return fmt.Errorf("unknown provider in configuration: %s", id)
		}
		if p.RequestsPerMinute < 0 {
			return fmt.Errorf("provider %s: requests_per_minute cannot be negative", id)
		}
	}

	for i, m := range c.Catalog.Models {
		if _, ok := types.ParseProviderID(string(m.Provider)); !ok {
			return fmt.Errorf("catalog model %d: unknown provider %q", i, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("catalog model %d: model is required", i)
		}
	}

	// Missing provider credentials are not an error: those providers are simply unavailable
	return nil
}

// CredentialEnv returns the environment variable holding a provider's key
func (c *Config) CredentialEnv(provider types.ProviderID) string {
	if p, ok := c.Providers[provider]; ok && p.APIKeyEnv != "" {
		return p.APIKeyEnv
	}
	return DefaultCredentialEnv[provider]
}

// Credentials returns a lookup that reads the provider's environment variable
// on every call, falling back to the key in the config file. Disabled providers
// always report no credential.
func (c *Config) Credentials() availability.CredentialLookup {
	return func(provider types.ProviderID) string {
		p := c.Providers[provider]
		if p.Disabled {
			return ""
		}
		if env := c.CredentialEnv(provider); env != "" {
			if v := os.Getenv(env); v != "" {
				return v
			}
		}
		return p.APIKey
	}
}

// ProviderRateLimits returns the configured client-side pacing per provider
func (c *Config) ProviderRateLimits() map[types.ProviderID]int {
	out := make(map[types.ProviderID]int)
	for id, p := range c.Providers {
		if p.RequestsPerMinute > 0 {
			out[id] = p.RequestsPerMinute
		}
	}
	return out
}

// RoutingProfile returns the validated default profile
func (c *Config) RoutingProfile() routing.Profile {
	p, err := routing.ParseProfile(c.Routing.Profile)
	if err != nil {
		return routing.ProfileDefault
	}
	return p
}

// PreferenceTable merges configured preference lists over the built-in table
func (c *Config) PreferenceTable() (routing.PreferenceTable, error) {
	table := routing.DefaultPreferences()
	for profileName, tasks := range c.Routing.Preferences {
		profile, err := routing.ParseProfile(profileName)
		if err != nil {
			return nil, fmt.Errorf("routing preferences: %w", err)
		}
		if table[profile] == nil {
			table[profile] = make(map[routing.TaskType][]types.ModelRef)
		}
		for taskName, entries := range tasks {
			task, err := routing.ParseTask(taskName)
			if err != nil {
				return nil, fmt.Errorf("routing preferences: %w", err)
			}
			refs := make([]types.ModelRef, 0, len(entries))
			for _, entry := range entries {
				ref, err := ParseModelRef(entry)
				if err != nil {
					return nil, fmt.Errorf("routing preferences for %s/%s: %w", profile, task, err)
				}
				refs = append(refs, ref)
			}
			table[profile][task] = refs
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// CatalogOverrides converts configured models to catalog profiles
func (c *Config) CatalogOverrides() []types.ProviderProfile {
	out := make([]types.ProviderProfile, 0, len(c.Catalog.Models))
	for _, m := range c.Catalog.Models {
		profile := types.ProviderProfile{
			Provider:    m.Provider,
			Model:       m.Model,
			DisplayName: m.DisplayName,
			Pricing: types.Pricing{
				InputPer1M:  m.InputPer1M,
				OutputPer1M: m.OutputPer1M,
			},
			Capabilities: types.Capabilities{
				MaxOutputTokens: m.MaxOutputTokens,
				ContextWindow:   m.ContextWindow,
				GeneratesImages: m.GeneratesImages,
			},
			CostTier:  m.CostTier,
			SpeedTier: m.SpeedTier,
		}
		if profile.DisplayName == "" {
			profile.DisplayName = m.Model
		}
		if m.ImagePrice1K > 0 || m.ImagePrice4K > 0 {
			profile.Pricing.ImageTiers = map[types.ImageTier]float64{
				types.ImageTier1K: m.ImagePrice1K,
				types.ImageTier4K: m.ImagePrice4K,
			}
		}
		out = append(out, profile)
	}
	return out
}

// ParseModelRef parses "provider/model". Model ids may themselves contain slashes.
func ParseModelRef(s string) (types.ModelRef, error) {
	providerName, model, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || model == "" {
		return types.ModelRef{}, fmt.Errorf("invalid model reference %q, want provider/model", s)
	}
	provider, known := types.ParseProviderID(providerName)
	if !known {
		return types.ModelRef{}, fmt.Errorf("unknown provider %q in %q", providerName, s)
	}
	return types.ModelRef{Provider: provider, Model: model}, nil
}

// ToServerConfig converts to server.ServerConfig
func (c *Config) ToServerConfig() *server.ServerConfig {
	return &server.ServerConfig{
		Port:           c.Server.Port,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxHeaderBytes: c.Server.MaxHeaderBytes,
		MetricsPath:    c.Server.MetricsPath,
		Security:       c.ToSecurityMiddlewareConfig(),
	}
}

// ToSecurityMiddlewareConfig converts to middleware.SecurityMiddlewareConfig
func (c *Config) ToSecurityMiddlewareConfig() *middleware.SecurityMiddlewareConfig {
	rl := c.Security.RateLimiting
	return &middleware.SecurityMiddlewareConfig{
		Auth: &security.AuthConfig{
			APIKeys:     c.Security.APIKeys,
			JWTSecret:   c.Security.JWTSecret,
			JWTExpiry:   c.Security.JWTExpiry,
			PublicPaths: []string{"/health", c.Server.MetricsPath},
		},
		RateLimit:      &rl,
		MaxRequestSize: c.Security.MaxRequestSize,
		AllowedOrigins: c.Security.AllowedOrigins,
	}
}

// SaveToFile writes the effective configuration to a YAML file with secrets removed
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy without provider keys, caller API keys or the JWT secret
func (c *Config) Redacted() *Config {
	out := *c
	out.Providers = make(map[types.ProviderID]ProviderConfig, len(c.Providers))
	for id, pc := range c.Providers {
		pc.APIKey = ""
		out.Providers[id] = pc
	}
	out.Security.APIKeys = nil
	out.Security.JWTSecret = ""
	return &out
}

// GetEnabledProviders returns providers that currently have credentials
func (c *Config) GetEnabledProviders() []types.ProviderID {
	lookup := c.Credentials()
	var out []types.ProviderID
	for _, p := range types.AllProviders() {
		if lookup(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
