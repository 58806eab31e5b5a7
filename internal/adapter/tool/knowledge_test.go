package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-query/internal/domain"
)

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 1 }
func (s *stubEmbedder) Name() string    { return "stub" }

type stubVectorStore struct {
	matches    []domain.VectorMatch
	err        error
	namespaces []string
	topKs      []int
}

func (s *stubVectorStore) Query(_ context.Context, namespace string, _ []float32, topK int) ([]domain.VectorMatch, error) {
	s.namespaces = append(s.namespaces, namespace)
	s.topKs = append(s.topKs, topK)
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

func (s *stubVectorStore) Upsert(_ context.Context, _ string, _ []domain.VectorRecord) error {
	return nil
}

func (s *stubVectorStore) Name() string { return "marketing-kb" }

func TestKnowledgeBaseQuery(t *testing.T) {
	store := &stubVectorStore{matches: []domain.VectorMatch{
		{ID: "a-0", Score: 0.92, Metadata: map[string]any{
			"source": "https://example.com/playbook.pdf",
			"text":   "Allocate budget by channel performance.",
		}},
		{ID: "a-1", Score: 0.88, Metadata: map[string]any{
			"source": "https://example.com/playbook.pdf",
			"text":   "Review CPC weekly.",
		}},
	}}
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, store, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a", TopK: 3})
	result, err := tool.Execute(ctx, json.RawMessage(`{"query": "how should I allocate budget?"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var got []domain.KnowledgeMatch
	require.NoError(t, json.Unmarshal([]byte(result.Content), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/playbook.pdf", got[0].Source)
	assert.Contains(t, got[0].Text, "Allocate budget")

	assert.Equal(t, []string{"tenant-a"}, store.namespaces)
	assert.Equal(t, []int{3}, store.topKs)
}

func TestKnowledgeBaseDefaultTopK(t *testing.T) {
	store := &stubVectorStore{}
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, store, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a"})
	_, err := tool.Execute(ctx, json.RawMessage(`{"query": "q"}`))
	require.NoError(t, err)
	assert.Equal(t, []int{defaultKnowledgeTopK}, store.topKs)
}

func TestKnowledgeBaseNoMatches(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, &stubVectorStore{}, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a"})
	result, err := tool.Execute(ctx, json.RawMessage(`{"query": "q"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "No relevant passages")
}

func TestKnowledgeBaseSkipsMatchesWithoutText(t *testing.T) {
	store := &stubVectorStore{matches: []domain.VectorMatch{
		{ID: "a-0", Metadata: map[string]any{"source": "doc.pdf"}},
		{ID: "a-1", Metadata: map[string]any{"source": "doc.pdf", "text": "usable passage"}},
	}}
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, store, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a"})
	result, err := tool.Execute(ctx, json.RawMessage(`{"query": "q"}`))
	require.NoError(t, err)

	var got []domain.KnowledgeMatch
	require.NoError(t, json.Unmarshal([]byte(result.Content), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "usable passage", got[0].Text)
}

func TestKnowledgeBaseEmptyQuery(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, &stubVectorStore{}, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a"})
	_, err := tool.Execute(ctx, json.RawMessage(`{"query": ""}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidToolArgs)
}

func TestKnowledgeBaseEmbedError(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("%w: provider unavailable", domain.ErrEmbeddingFailed)}
	store := &stubVectorStore{}
	tool := NewKnowledgeBaseTool(embedder, store, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a"})
	result, err := tool.Execute(ctx, json.RawMessage(`{"query": "q"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, store.namespaces, "store must not be queried when embedding fails")
}

func TestKnowledgeBaseStoreError(t *testing.T) {
	store := &stubVectorStore{err: fmt.Errorf("%w: index unavailable", domain.ErrVectorStore)}
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, store, newTestLogger())

	ctx := settingsCtx(domain.ToolSettings{Namespace: "tenant-a"})
	result, err := tool.Execute(ctx, json.RawMessage(`{"query": "q"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "index unavailable")
}

func TestKnowledgeBaseValidateSettings(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubEmbedder{}, &stubVectorStore{}, newTestLogger())

	err := tool.ValidateSettings(domain.ToolSettings{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)

	assert.NoError(t, tool.ValidateSettings(domain.ToolSettings{Namespace: "tenant-a"}))
}
