package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"smart-query/internal/domain"
)

// tavilyRequest models the Tavily /search request body.
type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// tavilyResponse models the relevant portion of the Tavily JSON response.
type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// TavilyBackend searches the web via the Tavily search API.
type TavilyBackend struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewTavilyBackend creates a search backend for the Tavily API. An empty
// baseURL selects the public endpoint.
func NewTavilyBackend(baseURL, apiKey string, logger *slog.Logger) *TavilyBackend {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &TavilyBackend{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}
}

func (b *TavilyBackend) Name() string { return "tavily" }

func (b *TavilyBackend) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	payload, err := json.Marshal(tavilyRequest{Query: query, MaxResults: count})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search request: %v", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search failed (HTTP %d): %s", domain.ErrUpstreamFailure, resp.StatusCode, string(body))
	}

	var tavResp tavilyResponse
	if err := json.Unmarshal(body, &tavResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(tavResp.Results))
	for _, r := range tavResp.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}

	b.logger.Debug("tavily search completed", "query", query, "results", len(results))
	return results, nil
}

var _ SearchBackend = (*TavilyBackend)(nil)
