// Package config provides configuration loading for lexorch.
//
// Configuration is loaded from a YAML file overlaid with environment
// variables, with sensible defaults. This package covers the server,
// observability, pattern store, cache, LLM client, throttle, and
// orchestrator settings for the extraction pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete lexorch configuration.
type Config struct {
	Production   ProductionConfig
	Server       ServerConfig
	Observability ObservabilityConfig
	PatternStore PatternStoreConfig
	PatternCache PatternCacheConfig
	LLM          LLMConfig
	Throttle     ThrottleConfig
	Orchestrator OrchestratorConfig
	Routing      RoutingConfig
}

// RoutingConfig holds the document router (C4) / size detector (C3)
// configuration overrides.
type RoutingConfig struct {
	CharsPerToken    float64 `koanf:"chars_per_token"`
	MaxContextLength int     `koanf:"max_context_length"`
	SafetyMargin     int     `koanf:"safety_margin"`
}

// PatternStoreConfig holds the pattern-loader (C1) configuration.
type PatternStoreConfig struct {
	// Dir is the root directory pattern YAML files are loaded from,
	// recursively. Default: "~/.config/lexorch/patterns".
	Dir string `koanf:"dir"`

	// Watch enables fsnotify-driven live reload of the pattern directory.
	Watch bool `koanf:"watch"`
}

// PatternCacheConfig holds the pattern cache (C2) configuration.
type PatternCacheConfig struct {
	// TTL is how long a cached lookup bucket stays valid.
	TTL Duration `koanf:"ttl"`

	// MaxEntries bounds the LRU's resident entry count.
	MaxEntries int `koanf:"max_entries"`
}

// LLMConfig holds the LLM client (C5) configuration.
type LLMConfig struct {
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
}

// ThrottleConfig holds the throttled client (C6) configuration.
type ThrottleConfig struct {
	MaxConcurrent        int      `koanf:"max_concurrent"`
	RequestsPerMinute    int      `koanf:"requests_per_minute"`
	CircuitFailThreshold int      `koanf:"circuit_fail_threshold"`
	CircuitResetTimeout  Duration `koanf:"circuit_reset_timeout"`
	HalfOpenRequests     int      `koanf:"half_open_requests"`

	// RequestDelay is the base delay enforced between requests, before any
	// adaptive adjustment.
	RequestDelay Duration `koanf:"request_delay"`

	// TargetResponseTime is the response-time goal the adaptive delay
	// controller steers towards.
	TargetResponseTime Duration `koanf:"target_response_time"`

	// AdaptiveDelayFactor is the adaptation rate applied to the gap between
	// the observed moving-average response time and TargetResponseTime.
	AdaptiveDelayFactor float64 `koanf:"adaptive_delay_factor"`

	// AdaptiveDelayMin/Max bound the adaptive delay after each adjustment.
	AdaptiveDelayMin Duration `koanf:"adaptive_delay_min"`
	AdaptiveDelayMax Duration `koanf:"adaptive_delay_max"`
}

// OrchestratorConfig holds the extraction orchestrator (C7) configuration.
type OrchestratorConfig struct {
	MaxConcurrentChunks int     `koanf:"max_concurrent_chunks"`
	ExtractRelationships bool   `koanf:"extract_relationships"`
	MinRelationshipConfidence float64 `koanf:"min_relationship_confidence"`
}

// ServerConfig holds HTTP admin server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry tracing configuration.
type ObservabilityConfig struct {
	EnableTelemetry   bool   `koanf:"enable_telemetry"`
	ServiceName       string `koanf:"service_name"`
	OTLPEndpoint      string `koanf:"otlp_endpoint"`        // OTLP endpoint (default: localhost:4317)
	OTLPProtocol      string `koanf:"otlp_protocol"`        // "grpc" or "http/protobuf" (default: grpc)
	OTLPInsecure      bool   `koanf:"otlp_insecure"`        // Use insecure connection (default: true for localhost)
	OTLPTLSSkipVerify bool   `koanf:"otlp_tls_skip_verify"` // Skip TLS verification for internal CAs
}

// Load loads configuration from environment variables with defaults.
//
// Quick Start - Most commonly configured env vars:
//
//   - PATTERNSTORE_DIR: Pattern YAML directory (default: ~/.config/lexorch/patterns)
//   - LLM_BASE_URL: LLM chat-completion endpoint (default: http://localhost:8000)
//   - LLM_API_KEY: LLM API key (secret, never logged)
//   - LEXORCH_PRODUCTION_MODE: Enable production safety checks (default: false)
//
// All environment variables:
//
// Server:
//   - SERVER_HTTP_PORT: HTTP admin server port (default: 9090)
//   - SERVER_SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 10s)
//
// Pattern store / cache:
//   - PATTERNSTORE_DIR: Pattern YAML root directory
//   - PATTERNSTORE_WATCH: Enable fsnotify live reload (default: false)
//   - PATTERNCACHE_TTL: Cache entry TTL (default: 1h)
//   - PATTERNCACHE_MAX_ENTRIES: LRU capacity (default: 10000)
//
// LLM client:
//   - LLM_BASE_URL: Chat-completion endpoint
//   - LLM_MODEL: Model name
//   - LLM_API_KEY: API key (secret)
//   - LLM_TIMEOUT: Per-request timeout (default: 30s)
//   - LLM_MAX_RETRIES: Retry attempts (default: 3)
//
// Throttle:
//   - THROTTLE_MAX_CONCURRENT: Semaphore size (default: 4)
//   - THROTTLE_REQUESTS_PER_MINUTE: Sliding-window cap (default: 60)
//   - THROTTLE_CIRCUIT_FAIL_THRESHOLD: Failures before OPEN (default: 5)
//   - THROTTLE_CIRCUIT_RESET_TIMEOUT: OPEN->HALF_OPEN delay (default: 30s)
//   - THROTTLE_ADAPTIVE_DELAY_FACTOR: Backpressure multiplier (default: 1.5)
//
// Orchestrator:
//   - ORCHESTRATOR_MAX_CONCURRENT_CHUNKS: Bounded chunk concurrency (default: 4)
//   - ORCHESTRATOR_EXTRACT_RELATIONSHIPS: Run the relationship wave (default: true)
//   - ORCHESTRATOR_MIN_RELATIONSHIP_CONFIDENCE: Drop floor (default: 0.5)
//
// Telemetry:
//   - OTEL_ENABLE: Enable OpenTelemetry (default: false, requires OTEL collector)
//   - OTEL_SERVICE_NAME: Service name for traces (default: lexorch)
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("LLM endpoint:", cfg.LLM.BaseURL)
func Load() *Config {
	cfg := &Config{
		Production: ProductionConfig{
			Enabled:               getEnvBool("LEXORCH_PRODUCTION_MODE", false),
			LocalModeAcknowledged: getEnvBool("LEXORCH_LOCAL_MODE", false),
			RequireAuthentication: getEnvBool("LEXORCH_REQUIRE_AUTH", false),
			RequireTLS:            getEnvBool("LEXORCH_REQUIRE_TLS", false),
			AllowNoIsolation:      getEnvBool("LEXORCH_ALLOW_NO_ISOLATION", false),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_HTTP_PORT", 9090),
			ShutdownTimeout: Duration(getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", false),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", "lexorch"),
		},
		PatternStore: PatternStoreConfig{
			Dir:   getEnvString("PATTERNSTORE_DIR", "~/.config/lexorch/patterns"),
			Watch: getEnvBool("PATTERNSTORE_WATCH", false),
		},
		PatternCache: PatternCacheConfig{
			TTL:        Duration(getEnvDuration("PATTERNCACHE_TTL", time.Hour)),
			MaxEntries: getEnvInt("PATTERNCACHE_MAX_ENTRIES", 10000),
		},
		LLM: LLMConfig{
			BaseURL:    getEnvString("LLM_BASE_URL", "http://localhost:8000"),
			Model:      getEnvString("LLM_MODEL", "default"),
			APIKey:     Secret(getEnvString("LLM_API_KEY", "")),
			Timeout:    Duration(getEnvDuration("LLM_TIMEOUT", 30*time.Second)),
			MaxRetries: getEnvInt("LLM_MAX_RETRIES", 3),
		},
		Throttle: ThrottleConfig{
			MaxConcurrent:        getEnvInt("THROTTLE_MAX_CONCURRENT", 4),
			RequestsPerMinute:    getEnvInt("THROTTLE_REQUESTS_PER_MINUTE", 60),
			CircuitFailThreshold: getEnvInt("THROTTLE_CIRCUIT_FAIL_THRESHOLD", 5),
			CircuitResetTimeout:  Duration(getEnvDuration("THROTTLE_CIRCUIT_RESET_TIMEOUT", 30*time.Second)),
			HalfOpenRequests:     getEnvInt("THROTTLE_HALF_OPEN_REQUESTS", 3),
			RequestDelay:         Duration(getEnvDuration("THROTTLE_REQUEST_DELAY", 100*time.Millisecond)),
			TargetResponseTime:   Duration(getEnvDuration("THROTTLE_TARGET_RESPONSE_TIME", 2*time.Second)),
			AdaptiveDelayFactor:  getEnvFloat("THROTTLE_ADAPTIVE_DELAY_FACTOR", 1.5),
			AdaptiveDelayMin:     Duration(getEnvDuration("THROTTLE_ADAPTIVE_DELAY_MIN", 50*time.Millisecond)),
			AdaptiveDelayMax:     Duration(getEnvDuration("THROTTLE_ADAPTIVE_DELAY_MAX", 10*time.Second)),
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentChunks:       getEnvInt("ORCHESTRATOR_MAX_CONCURRENT_CHUNKS", 4),
			ExtractRelationships:      getEnvBool("ORCHESTRATOR_EXTRACT_RELATIONSHIPS", true),
			MinRelationshipConfidence: getEnvFloat("ORCHESTRATOR_MIN_RELATIONSHIP_CONFIDENCE", 0.5),
		},
		Routing: RoutingConfig{
			CharsPerToken:    getEnvFloat("ROUTING_CHARS_PER_TOKEN", 4.0),
			MaxContextLength: getEnvInt("ROUTING_MAX_CONTEXT_LENGTH", 32_768),
			SafetyMargin:     getEnvInt("ROUTING_SAFETY_MARGIN", 2_000),
		},
	}

	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	// Validate observability configuration
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if err := validatePath(c.PatternStore.Dir); err != nil {
		return fmt.Errorf("invalid PATTERNSTORE_DIR: %w", err)
	}

	if c.PatternCache.MaxEntries <= 0 {
		return errors.New("PATTERNCACHE_MAX_ENTRIES must be positive")
	}

	if c.LLM.BaseURL != "" {
		if err := validateURL(c.LLM.BaseURL); err != nil {
			return fmt.Errorf("invalid LLM_BASE_URL: %w", err)
		}
	}

	if c.LLM.Timeout.Duration() <= 0 {
		return errors.New("LLM_TIMEOUT must be positive")
	}

	if c.Throttle.MaxConcurrent <= 0 {
		return errors.New("THROTTLE_MAX_CONCURRENT must be positive")
	}
	if c.Throttle.RequestsPerMinute <= 0 {
		return errors.New("THROTTLE_REQUESTS_PER_MINUTE must be positive")
	}
	if c.Throttle.CircuitFailThreshold <= 0 {
		return errors.New("THROTTLE_CIRCUIT_FAIL_THRESHOLD must be positive")
	}
	if c.Throttle.AdaptiveDelayMin.Duration() > c.Throttle.AdaptiveDelayMax.Duration() {
		return errors.New("THROTTLE_ADAPTIVE_DELAY_MIN must not exceed THROTTLE_ADAPTIVE_DELAY_MAX")
	}

	if c.Routing.CharsPerToken <= 0 {
		return errors.New("ROUTING_CHARS_PER_TOKEN must be positive")
	}
	if c.Routing.MaxContextLength <= 0 {
		return errors.New("ROUTING_MAX_CONTEXT_LENGTH must be positive")
	}
	if c.Routing.SafetyMargin < 0 {
		return errors.New("ROUTING_SAFETY_MARGIN must not be negative")
	}

	// Validate production configuration
	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ProductionConfig holds production deployment configuration.
type ProductionConfig struct {
	// Enabled indicates whether production mode is active.
	// Set via LEXORCH_PRODUCTION_MODE=1 environment variable.
	Enabled bool `koanf:"enabled"`

	// LocalModeAcknowledged allows development features in production mode.
	// Set via LEXORCH_LOCAL_MODE=1 environment variable.
	// Use only for local development/testing.
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`

	// RequireAuthentication enforces authentication in production.
	RequireAuthentication bool `koanf:"require_authentication"`

	// AuthenticationConfigured indicates if auth is properly set up.
	AuthenticationConfigured bool `koanf:"authentication_configured"`

	// RequireTLS enforces TLS for external services (LLM endpoint, OTLP).
	RequireTLS bool `koanf:"require_tls"`

	// AllowNoIsolation permits NoIsolation mode (testing only).
	// Always false in production mode.
	AllowNoIsolation bool `koanf:"allow_no_isolation"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool {
	return c.Enabled
}

// IsLocal returns true if local mode is acknowledged.
func (c *ProductionConfig) IsLocal() bool {
	return c.LocalModeAcknowledged
}

// Validate checks production configuration for security issues.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil // Not in production, skip validation
	}

	if c.AllowNoIsolation {
		return fmt.Errorf("SECURITY: NoIsolation mode cannot be enabled in production")
	}

	if c.RequireAuthentication && !c.AuthenticationConfigured {
		return fmt.Errorf("SECURITY: RequireAuthentication enabled but authentication not configured")
	}

	return nil
}

// validatePath checks if a path is safe (no path traversal)
func validatePath(path string) error {
	// Check for path traversal sequences
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}

	// For absolute paths, verify the cleaned path doesn't escape
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		// Count directory depth - compare original vs cleaned
		// If cleaned has fewer separators, upward traversal occurred
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))

		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}

	return nil
}

// validateURL checks if a URL uses allowed schemes (http/https only)
func validateURL(urlStr string) error {
	// Only allow http and https schemes
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}
