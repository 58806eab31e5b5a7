package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"smart-query/internal/domain"
)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// PineconeOption configures the Pinecone store.
type PineconeOption func(*PineconeStore)

// WithPineconeClient sets a custom HTTP client.
func WithPineconeClient(client *http.Client) PineconeOption {
	return func(s *PineconeStore) { s.client = client }
}

// PineconeStore implements domain.VectorStore against a single Pinecone
// index, addressed by its serverless host URL.
type PineconeStore struct {
	host      string // e.g. https://marketing-kb-abc123.svc.us-east-1.pinecone.io
	apiKey    string
	indexName string
	client    *http.Client
}

// NewPineconeStore creates a store bound to one Pinecone index.
func NewPineconeStore(host, apiKey, indexName string, opts ...PineconeOption) *PineconeStore {
	s := &PineconeStore{
		host:      host,
		apiKey:    apiKey,
		indexName: indexName,
		client:    defaultHTTPClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Pinecone wire types ---

type pineconeQueryRequest struct {
	Namespace       string    `json:"namespace,omitempty"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []pineconeMatch `json:"matches"`
}

type pineconeMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeUpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Query implements domain.VectorStore.
func (s *PineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	reqBody := pineconeQueryRequest{
		Namespace:       namespace,
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	}

	var resp pineconeQueryResponse
	if err := s.post(ctx, "/query", reqBody, &resp); err != nil {
		return nil, err
	}

	matches := make([]domain.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, domain.VectorMatch{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}
	return matches, nil
}

// Upsert implements domain.VectorStore.
func (s *PineconeStore) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	vectors := make([]pineconeVector, len(records))
	for i, r := range records {
		vectors[i] = pineconeVector{ID: r.ID, Values: r.Values, Metadata: r.Metadata}
	}

	var resp pineconeUpsertResponse
	if err := s.post(ctx, "/vectors/upsert", pineconeUpsertRequest{Vectors: vectors, Namespace: namespace}, &resp); err != nil {
		return err
	}
	if resp.UpsertedCount != len(records) {
		return fmt.Errorf("%w: upserted %d of %d records", domain.ErrVectorStore, resp.UpsertedCount, len(records))
	}
	return nil
}

// Name implements domain.VectorStore. It returns the index name the store
// is bound to, which ingestion requests are checked against.
func (s *PineconeStore) Name() string { return s.indexName }

func (s *PineconeStore) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", domain.ErrVectorStore, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrVectorStore, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http request: %v", domain.ErrVectorStore, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrVectorStore, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: API error %d: %s", domain.ErrVectorStore, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", domain.ErrVectorStore, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.VectorStore = (*PineconeStore)(nil)
