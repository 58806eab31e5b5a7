package domain

import "context"

// VectorRecord is one vector plus its metadata, addressed by ID within a
// namespace.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorMatch is a single nearest-neighbor result.
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorStore is the interface for a remote vector index.
type VectorStore interface {
	// Query returns the topK nearest neighbors of the vector in the namespace.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error)
	// Upsert writes records into the namespace, overwriting existing IDs.
	Upsert(ctx context.Context, namespace string, records []VectorRecord) error
	// Name returns the store's identifier.
	Name() string
}

// KnowledgeMatch is a knowledge-base lookup result shaped for the model:
// the source document and the matched passage text.
type KnowledgeMatch struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}
