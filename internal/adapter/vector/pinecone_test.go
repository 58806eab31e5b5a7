package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smart-query/internal/domain"
)

func TestPineconeQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Api-Key") != "pc-key" {
			t.Errorf("unexpected api key: %s", r.Header.Get("Api-Key"))
		}

		var req pineconeQueryRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Namespace != "tenant-a" {
			t.Errorf("namespace = %q, want tenant-a", req.Namespace)
		}
		if req.TopK != 3 {
			t.Errorf("topK = %d, want 3", req.TopK)
		}
		if !req.IncludeMetadata {
			t.Error("includeMetadata should be true")
		}

		json.NewEncoder(w).Encode(pineconeQueryResponse{
			Matches: []pineconeMatch{
				{ID: "a1b2c3d4-0", Score: 0.93, Metadata: map[string]any{"source": "doc.pdf", "text": "passage"}},
				{ID: "a1b2c3d4-1", Score: 0.87, Metadata: map[string]any{"source": "doc.pdf", "text": "another"}},
			},
		})
	}))
	defer server.Close()

	store := NewPineconeStore(server.URL, "pc-key", "marketing-kb")
	matches, err := store.Query(context.Background(), "tenant-a", []float32{0.1, 0.2}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches len = %d, want 2", len(matches))
	}
	if matches[0].ID != "a1b2c3d4-0" || matches[0].Score != 0.93 {
		t.Errorf("unexpected first match: %+v", matches[0])
	}
	if matches[1].Metadata["text"] != "another" {
		t.Errorf("unexpected metadata: %+v", matches[1].Metadata)
	}
}

func TestPineconeUpsert(t *testing.T) {
	var gotReq pineconeUpsertRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(pineconeUpsertResponse{UpsertedCount: len(gotReq.Vectors)})
	}))
	defer server.Close()

	store := NewPineconeStore(server.URL, "pc-key", "marketing-kb")
	err := store.Upsert(context.Background(), "tenant-a", []domain.VectorRecord{
		{ID: "doc-0", Values: []float32{0.1}, Metadata: map[string]any{"page": 1}},
		{ID: "doc-1", Values: []float32{0.2}, Metadata: map[string]any{"page": 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if gotReq.Namespace != "tenant-a" {
		t.Errorf("namespace = %q, want tenant-a", gotReq.Namespace)
	}
	if len(gotReq.Vectors) != 2 || gotReq.Vectors[0].ID != "doc-0" {
		t.Errorf("unexpected vectors: %+v", gotReq.Vectors)
	}
}

func TestPineconeUpsertEmpty(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer server.Close()

	store := NewPineconeStore(server.URL, "pc-key", "marketing-kb")
	if err := store.Upsert(context.Background(), "ns", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if called {
		t.Error("no request expected for empty batch")
	}
}

func TestPineconeUpsertPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(pineconeUpsertResponse{UpsertedCount: 1})
	}))
	defer server.Close()

	store := NewPineconeStore(server.URL, "pc-key", "marketing-kb")
	err := store.Upsert(context.Background(), "ns", []domain.VectorRecord{
		{ID: "a", Values: []float32{0.1}},
		{ID: "b", Values: []float32{0.2}},
	})
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected ErrVectorStore for partial upsert, got: %v", err)
	}
}

func TestPineconeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"index not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	store := NewPineconeStore(server.URL, "pc-key", "missing")
	_, err := store.Query(context.Background(), "ns", []float32{0.1}, 5)
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected ErrVectorStore, got: %v", err)
	}
}

func TestPineconeConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	store := NewPineconeStore(server.URL, "pc-key", "marketing-kb")
	_, err := store.Query(context.Background(), "ns", []float32{0.1}, 5)
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected ErrVectorStore, got: %v", err)
	}
}

func TestPineconeName(t *testing.T) {
	store := NewPineconeStore("https://host", "key", "marketing-kb")
	if store.Name() != "marketing-kb" {
		t.Errorf("Name() = %q, want marketing-kb", store.Name())
	}
}
