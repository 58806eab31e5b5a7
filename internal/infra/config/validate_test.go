package config

import (
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("error %q does not contain %q", haystack, needle)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateServerAddrEmpty(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Addr = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "server.addr must not be empty")
}

func TestValidateServerAddrMalformed(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Addr = "localhost"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "not a valid host:port")
}

func TestValidateRateLimitValues(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.RequestsPerMin = 0
	cfg.Server.RateLimit.BurstSize = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "server.rate_limit.requests_per_min must be positive")
	assertContains(t, err.Error(), "server.rate_limit.burst_size must be positive")
}

func TestValidateAuthStaticRequiresTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Auth.Type = "static"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "server.auth.tokens must not be empty")
}

func TestValidateAuthDuplicateTokenName(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Auth.Type = "static"
	cfg.Server.Auth.Tokens = []TokenConfig{
		{Token: "a", Name: "client"},
		{Token: "b", Name: "client"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `duplicate name "client"`)
}

func TestValidateProviderUnknownType(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "local", Type: "ollama", Model: "llama3"},
	}
	cfg.LLM.DefaultProvider = "local"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `type "ollama" is not supported`)
}

func TestValidateProviderMissingModel(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "openai", Type: "openai"},
	}
	cfg.LLM.DefaultProvider = "openai"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "llm.providers[openai].model must not be empty")
}

func TestValidateProviderDuplicateName(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "openai", Type: "openai", Model: "gpt-4o"},
		{Name: "openai", Type: "openai", Model: "gpt-4o-mini"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `duplicate name "openai"`)
}

func TestValidateDefaultProviderUnknown(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "openai", Type: "openai", Model: "gpt-4o"},
	}
	cfg.LLM.DefaultProvider = "anthropic"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `llm.default_provider "anthropic" is not a configured provider`)
}

func TestValidateCircuitBreaker(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.CircuitBreaker.Enabled = true
	cfg.LLM.CircuitBreaker.MaxFailures = 0
	cfg.LLM.CircuitBreaker.Timeout = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "llm.circuit_breaker.max_failures must be positive")
	assertContains(t, err.Error(), "llm.circuit_breaker.timeout must be positive")
}

func TestValidateTurnValues(t *testing.T) {
	cfg := Defaults()
	cfg.Turn.WindowSize = 0
	cfg.Turn.MaxToolRounds = -1
	cfg.Turn.ToolTimeout = 0
	cfg.Turn.Temperature = 3
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "turn.window_size must be positive")
	assertContains(t, err.Error(), "turn.max_tool_rounds must be positive")
	assertContains(t, err.Error(), "turn.tool_timeout must be positive")
	assertContains(t, err.Error(), "turn.temperature must be in [0, 2]")
}

func TestValidateEmbeddingValues(t *testing.T) {
	cfg := Defaults()
	cfg.Embedding.Model = ""
	cfg.Embedding.Dimensions = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "embedding.model must not be empty")
	assertContains(t, err.Error(), "embedding.dimensions must be positive")
}

func TestValidateVectorOptionalWhenNoHost(t *testing.T) {
	cfg := Defaults()
	cfg.Vector.Host = ""
	cfg.Vector.APIKey = ""
	cfg.Vector.TopK = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("vector section should be optional: %v", err)
	}
}

func TestValidateVectorRequiresKey(t *testing.T) {
	cfg := Defaults()
	cfg.Vector.Host = "https://idx-abc.svc.pinecone.io"
	cfg.Vector.APIKey = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "vector.api_key must not be empty")
}

func TestValidateSearchEnabledRequiresKey(t *testing.T) {
	cfg := Defaults()
	cfg.Search.Enabled = true
	cfg.Search.APIKey = ""
	cfg.Search.MaxResults = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "search.api_key must not be empty")
	assertContains(t, err.Error(), "search.max_results must be positive")
}

func TestValidateIngestOverlap(t *testing.T) {
	cfg := Defaults()
	cfg.Ingest.ChunkSize = 100
	cfg.Ingest.ChunkOverlap = 100
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "must be smaller than ingest.chunk_size")
}

func TestValidateLoggerValues(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "verbose"
	cfg.Logger.Format = "xml"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `logger.level "verbose" is not valid`)
	assertContains(t, err.Error(), `logger.format "xml" is not valid`)
}

func TestValidateLoggerFileOutput(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Output = "/var/log/smart-query.log"
	if err := Validate(cfg); err != nil {
		t.Fatalf("file output should be allowed: %v", err)
	}
}

func TestValidateTracerUnknownExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Enabled = true
	cfg.Tracer.Exporter = "jaeger"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `tracer.exporter "jaeger" is not valid`)
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Addr = ""
	cfg.Turn.WindowSize = 0
	cfg.Embedding.Model = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if len(ve.Errors) < 3 {
		t.Errorf("errors = %d, want at least 3: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateToolTimeoutDuration(t *testing.T) {
	cfg := Defaults()
	cfg.Turn.ToolTimeout = 45 * time.Second
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid timeout should pass: %v", err)
	}
}
