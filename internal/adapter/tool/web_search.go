package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"smart-query/internal/domain"
	"smart-query/internal/infra/tracer"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 20
	defaultCacheTTL    = 15 * time.Minute
)

// cacheEntry holds a cached search result with its expiration time.
type cacheEntry struct {
	result    string
	expiresAt time.Time
}

// WebSearchTool performs web searches via a pluggable SearchBackend. The
// result count comes from the turn's settings; the model only supplies the
// query.
type WebSearchTool struct {
	backend  SearchBackend
	cacheTTL time.Duration
	limiter  *RateLimiter
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// WebSearchOption configures a WebSearchTool.
type WebSearchOption func(*WebSearchTool)

// WithSearchRateLimit caps backend calls to limit per window. Cache hits are
// not counted against the limit.
func WithSearchRateLimit(limit int, window time.Duration) WebSearchOption {
	return func(t *WebSearchTool) {
		t.limiter = NewRateLimiter(limit, window)
	}
}

// NewWebSearchTool creates a web search tool backed by the given SearchBackend.
func NewWebSearchTool(backend SearchBackend, cacheTTL time.Duration, logger *slog.Logger, opts ...WebSearchOption) *WebSearchTool {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	t := &WebSearchTool{
		backend:  backend,
		cacheTTL: cacheTTL,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web for current information such as market trends and benchmarks"
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, BadArgs("query must not be empty")
			}

			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			count := domain.ToolSettingsFromContext(ctx).MaxSearchResults
			if count <= 0 {
				count = defaultSearchCount
			}
			if count > maxSearchCount {
				count = maxSearchCount
			}

			cacheKey := fmt.Sprintf("%s|%d", p.Query, count)
			if cached, ok := t.getCached(cacheKey); ok {
				t.logger.Debug("web search cache hit", "query", p.Query)
				span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
				return cached, nil
			}

			if t.limiter != nil && !t.limiter.Allow() {
				return ErrResult("search rate limit exceeded, try again later")
			}

			results, err := t.backend.Search(ctx, p.Query, count)
			if err != nil {
				return nil, err
			}

			// Defensive: cap results to requested count
			if len(results) > count {
				results = results[:count]
			}

			content := formatSearchResults(p.Query, results)
			t.putCache(cacheKey, content)

			t.logger.Debug("web search completed", "query", p.Query, "results", len(results))
			return content, nil
		},
	)
}

// formatSearchResults converts search results to a compact text format for LLM consumption.
func formatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No search results found for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n   %s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return sb.String()
}

// getCached returns a cached result if it exists and has not expired.
func (t *WebSearchTool) getCached(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.cache[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(t.cache, key)
		return "", false
	}
	return entry.result, true
}

// putCache stores a result in the cache with the configured TTL.
func (t *WebSearchTool) putCache(key, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache[key] = cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(t.cacheTTL),
	}

	// Lazy eviction: remove expired entries if cache grows large
	if len(t.cache) > 100 {
		now := time.Now()
		for k, v := range t.cache {
			if now.After(v.expiresAt) {
				delete(t.cache, k)
			}
		}
	}
}
