package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	clearLexorchEnv(t)

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Observability.ServiceName != "lexorch" {
		t.Errorf("Observability.ServiceName = %q, want lexorch", cfg.Observability.ServiceName)
	}
	if cfg.PatternStore.Dir != "~/.config/lexorch/patterns" {
		t.Errorf("PatternStore.Dir = %q, want ~/.config/lexorch/patterns", cfg.PatternStore.Dir)
	}
	if cfg.PatternCache.MaxEntries != 10000 {
		t.Errorf("PatternCache.MaxEntries = %d, want 10000", cfg.PatternCache.MaxEntries)
	}
	if cfg.LLM.BaseURL != "http://localhost:8000" {
		t.Errorf("LLM.BaseURL = %q, want http://localhost:8000", cfg.LLM.BaseURL)
	}
	if cfg.Throttle.MaxConcurrent != 4 {
		t.Errorf("Throttle.MaxConcurrent = %d, want 4", cfg.Throttle.MaxConcurrent)
	}
	if cfg.Routing.CharsPerToken != 4.0 {
		t.Errorf("Routing.CharsPerToken = %v, want 4.0", cfg.Routing.CharsPerToken)
	}
	if cfg.Routing.MaxContextLength != 32_768 {
		t.Errorf("Routing.MaxContextLength = %d, want 32768", cfg.Routing.MaxContextLength)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearLexorchEnv(t)

	os.Setenv("SERVER_HTTP_PORT", "9191")
	os.Setenv("LLM_BASE_URL", "http://llm.internal:9000")
	os.Setenv("THROTTLE_MAX_CONCURRENT", "16")
	os.Setenv("ROUTING_CHARS_PER_TOKEN", "3.5")

	cfg := Load()

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "http://llm.internal:9000" {
		t.Errorf("LLM.BaseURL = %q, want http://llm.internal:9000", cfg.LLM.BaseURL)
	}
	if cfg.Throttle.MaxConcurrent != 16 {
		t.Errorf("Throttle.MaxConcurrent = %d, want 16", cfg.Throttle.MaxConcurrent)
	}
	if cfg.Routing.CharsPerToken != 3.5 {
		t.Errorf("Routing.CharsPerToken = %v, want 3.5", cfg.Routing.CharsPerToken)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"negative shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = Duration(-time.Second) }, true},
		{"telemetry without service name", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, true},
		{"bad LLM url scheme", func(c *Config) { c.LLM.BaseURL = "ftp://bad" }, true},
		{"zero LLM timeout", func(c *Config) { c.LLM.Timeout = Duration(0) }, true},
		{"zero max concurrent", func(c *Config) { c.Throttle.MaxConcurrent = 0 }, true},
		{"zero requests per minute", func(c *Config) { c.Throttle.RequestsPerMinute = 0 }, true},
		{"inverted adaptive delay bounds", func(c *Config) {
			c.Throttle.AdaptiveDelayMin = Duration(time.Second)
			c.Throttle.AdaptiveDelayMax = Duration(100 * time.Millisecond)
		}, true},
		{"zero chars per token", func(c *Config) { c.Routing.CharsPerToken = 0 }, true},
		{"negative safety margin", func(c *Config) { c.Routing.SafetyMargin = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLexorchEnv(t)
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProductionConfig_Defaults(t *testing.T) {
	clearLexorchEnv(t)

	cfg := Load()

	if cfg.Production.Enabled {
		t.Error("Production.Enabled = true, want false (disabled by default)")
	}
}

func TestProductionConfig_EnabledViaEnv(t *testing.T) {
	clearLexorchEnv(t)
	os.Setenv("LEXORCH_PRODUCTION_MODE", "1")

	cfg := Load()

	if !cfg.Production.Enabled {
		t.Error("Production.Enabled = false, want true when LEXORCH_PRODUCTION_MODE=1")
	}
}

func TestProductionConfig_Validate_RejectsNoIsolation(t *testing.T) {
	p := ProductionConfig{Enabled: true, AllowNoIsolation: true}
	if err := p.Validate(); err == nil {
		t.Error("expected error when AllowNoIsolation is set in production")
	}
}

func TestSecret_RedactedInOutput(t *testing.T) {
	s := Secret("super-secret-key")
	if s.String() != "[REDACTED]" {
		t.Errorf("Secret.String() = %q, want [REDACTED]", s.String())
	}
	if s.Value() != "super-secret-key" {
		t.Errorf("Secret.Value() = %q, want super-secret-key", s.Value())
	}
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(b) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON = %s, want \"[REDACTED]\"", b)
	}
}

func clearLexorchEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_HTTP_PORT", "SERVER_SHUTDOWN_TIMEOUT",
		"OTEL_ENABLE", "OTEL_SERVICE_NAME",
		"PATTERNSTORE_DIR", "PATTERNSTORE_WATCH",
		"PATTERNCACHE_TTL", "PATTERNCACHE_MAX_ENTRIES",
		"LLM_BASE_URL", "LLM_MODEL", "LLM_API_KEY", "LLM_TIMEOUT", "LLM_MAX_RETRIES",
		"THROTTLE_MAX_CONCURRENT", "THROTTLE_REQUESTS_PER_MINUTE",
		"THROTTLE_CIRCUIT_FAIL_THRESHOLD", "THROTTLE_CIRCUIT_RESET_TIMEOUT", "THROTTLE_ADAPTIVE_DELAY_FACTOR",
		"THROTTLE_HALF_OPEN_REQUESTS", "THROTTLE_REQUEST_DELAY", "THROTTLE_TARGET_RESPONSE_TIME",
		"THROTTLE_ADAPTIVE_DELAY_MIN", "THROTTLE_ADAPTIVE_DELAY_MAX",
		"ORCHESTRATOR_MAX_CONCURRENT_CHUNKS", "ORCHESTRATOR_EXTRACT_RELATIONSHIPS", "ORCHESTRATOR_MIN_RELATIONSHIP_CONFIDENCE",
		"ROUTING_CHARS_PER_TOKEN", "ROUTING_MAX_CONTEXT_LENGTH", "ROUTING_SAFETY_MARGIN",
		"LEXORCH_PRODUCTION_MODE", "LEXORCH_LOCAL_MODE", "LEXORCH_REQUIRE_AUTH",
		"LEXORCH_REQUIRE_TLS", "LEXORCH_ALLOW_NO_ISOLATION",
	}
	for _, k := range keys {
		os.Unsetenv(k)
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
}
