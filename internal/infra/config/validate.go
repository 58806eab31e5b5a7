package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateLLM(cfg, ve)
	validateTurn(cfg, ve)
	validateEmbedding(cfg, ve)
	validateVector(cfg, ve)
	validateSearch(cfg, ve)
	validateIngest(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not a valid host:port: %v", cfg.Server.Addr, err)
	}

	if cfg.Server.RateLimit.Enabled {
		if cfg.Server.RateLimit.RequestsPerMin <= 0 {
			ve.Add("server.rate_limit.requests_per_min must be positive, got %d",
				cfg.Server.RateLimit.RequestsPerMin)
		}
		if cfg.Server.RateLimit.BurstSize <= 0 {
			ve.Add("server.rate_limit.burst_size must be positive, got %d",
				cfg.Server.RateLimit.BurstSize)
		}
	}

	switch cfg.Server.Auth.Type {
	case "", "static":
	default:
		ve.Add("server.auth.type %q is not supported (want static)", cfg.Server.Auth.Type)
	}
	if cfg.Server.Auth.Type == "static" && len(cfg.Server.Auth.Tokens) == 0 {
		ve.Add("server.auth.tokens must not be empty when auth.type is static")
	}
	seen := make(map[string]bool, len(cfg.Server.Auth.Tokens))
	for i, tok := range cfg.Server.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("server.auth.tokens[%d].token must not be empty", i)
		}
		if tok.Name == "" {
			ve.Add("server.auth.tokens[%d].name must not be empty", i)
		}
		if tok.Name != "" && seen[tok.Name] {
			ve.Add("server.auth.tokens: duplicate name %q", tok.Name)
		}
		seen[tok.Name] = true
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool, len(cfg.LLM.Providers))
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if names[p.Name] {
			ve.Add("llm.providers: duplicate name %q", p.Name)
		}
		names[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%s].type %q is not supported (want openai or anthropic)",
				p.Name, p.Type)
		}
		if p.Model == "" {
			ve.Add("llm.providers[%s].model must not be empty", p.Name)
		}
		if p.ConnTimeout < 0 {
			ve.Add("llm.providers[%s].conn_timeout must not be negative", p.Name)
		}
		if p.RespTimeout < 0 {
			ve.Add("llm.providers[%s].resp_timeout must not be negative", p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && len(cfg.LLM.Providers) > 0 && !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q is not a configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.CircuitBreaker.Enabled {
		if cfg.LLM.CircuitBreaker.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be positive")
		}
		if cfg.LLM.CircuitBreaker.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be positive")
		}
	}
}

func validateTurn(cfg *Config, ve *ValidationError) {
	if cfg.Turn.WindowSize <= 0 {
		ve.Add("turn.window_size must be positive, got %d", cfg.Turn.WindowSize)
	}
	if cfg.Turn.MaxToolRounds <= 0 {
		ve.Add("turn.max_tool_rounds must be positive, got %d", cfg.Turn.MaxToolRounds)
	}
	if cfg.Turn.ToolTimeout <= 0 {
		ve.Add("turn.tool_timeout must be positive, got %s", cfg.Turn.ToolTimeout)
	}
	if cfg.Turn.MaxTokens < 0 {
		ve.Add("turn.max_tokens must not be negative, got %d", cfg.Turn.MaxTokens)
	}
	if cfg.Turn.Temperature < 0 || cfg.Turn.Temperature > 2 {
		ve.Add("turn.temperature must be in [0, 2], got %v", cfg.Turn.Temperature)
	}
}

func validateEmbedding(cfg *Config, ve *ValidationError) {
	if cfg.Embedding.Model == "" {
		ve.Add("embedding.model must not be empty")
	}
	if cfg.Embedding.Dimensions <= 0 {
		ve.Add("embedding.dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.CacheSize < 0 {
		ve.Add("embedding.cache_size must not be negative, got %d", cfg.Embedding.CacheSize)
	}
}

func validateVector(cfg *Config, ve *ValidationError) {
	// The vector index is optional; only validate when a host is set.
	if cfg.Vector.Host == "" {
		return
	}
	if cfg.Vector.APIKey == "" {
		ve.Add("vector.api_key must not be empty when vector.host is set")
	}
	if cfg.Vector.TopK <= 0 {
		ve.Add("vector.top_k must be positive, got %d", cfg.Vector.TopK)
	}
}

func validateSearch(cfg *Config, ve *ValidationError) {
	if !cfg.Search.Enabled {
		return
	}
	switch cfg.Search.Backend {
	case "", "tavily":
		if cfg.Search.APIKey == "" {
			ve.Add("search.api_key must not be empty when search is enabled")
		}
	case "searxng":
		if cfg.Search.BaseURL == "" {
			ve.Add("search.base_url must not be empty for the searxng backend")
		}
	default:
		ve.Add("search.backend %q is not supported (want tavily or searxng)", cfg.Search.Backend)
	}
	if cfg.Search.MaxResults <= 0 {
		ve.Add("search.max_results must be positive, got %d", cfg.Search.MaxResults)
	}
	if cfg.Search.CacheTTL < 0 {
		ve.Add("search.cache_ttl must not be negative, got %s", cfg.Search.CacheTTL)
	}
}

func validateIngest(cfg *Config, ve *ValidationError) {
	if cfg.Ingest.ChunkSize <= 0 {
		ve.Add("ingest.chunk_size must be positive, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap < 0 {
		ve.Add("ingest.chunk_overlap must not be negative, got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize && cfg.Ingest.ChunkSize > 0 {
		ve.Add("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.BatchSize <= 0 {
		ve.Add("ingest.batch_size must be positive, got %d", cfg.Ingest.BatchSize)
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q is not valid (want debug, info, warn, or error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is not valid (want text or json)", cfg.Logger.Format)
	}
	switch cfg.Logger.Output {
	case "stdout", "stderr":
	default:
		// Anything else is treated as a file path.
		if cfg.Logger.Output == "" {
			ve.Add("logger.output must not be empty")
		}
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is not valid (want noop or stdout)", cfg.Tracer.Exporter)
	}
}
