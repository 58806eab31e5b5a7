package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"smart-query/internal/domain"
	"smart-query/internal/infra/tracer"
)

const defaultKnowledgeTopK = 5

// KnowledgeBaseTool retrieves passages from the ingested document index by
// semantic similarity. The namespace and result count come from the turn's
// settings.
type KnowledgeBaseTool struct {
	embedder domain.EmbeddingProvider
	store    domain.VectorStore
	logger   *slog.Logger
}

func NewKnowledgeBaseTool(embedder domain.EmbeddingProvider, store domain.VectorStore, logger *slog.Logger) *KnowledgeBaseTool {
	return &KnowledgeBaseTool{embedder: embedder, store: store, logger: logger}
}

func (t *KnowledgeBaseTool) Name() string { return "query_knowledge_base" }
func (t *KnowledgeBaseTool) Description() string {
	return "Search the marketing knowledge base for relevant document passages"
}

func (t *KnowledgeBaseTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "What to look up in the knowledge base"}
			},
			"required": ["query"]
		}`),
	}
}

func (t *KnowledgeBaseTool) ValidateSettings(s domain.ToolSettings) error {
	if s.Namespace == "" {
		return domain.NewDomainError("tool.settings", domain.ErrConfigurationMissing,
			"namespace is required for knowledge base lookups")
	}
	return nil
}

type knowledgeParams struct {
	Query string `json:"query"`
}

func (t *KnowledgeBaseTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.query_knowledge_base", t.logger, params,
		func(ctx context.Context, span trace.Span, p knowledgeParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, BadArgs("query must not be empty")
			}

			settings := domain.ToolSettingsFromContext(ctx)
			topK := settings.TopK
			if topK <= 0 {
				topK = defaultKnowledgeTopK
			}
			span.SetAttributes(
				tracer.StringAttr("vector.namespace", settings.Namespace),
				tracer.IntAttr("vector.top_k", topK),
			)

			vectors, err := t.embedder.Embed(ctx, []string{p.Query})
			if err != nil {
				return nil, err
			}
			if len(vectors) != 1 {
				return nil, fmt.Errorf("%w: expected 1 embedding, got %d", domain.ErrEmbeddingFailed, len(vectors))
			}

			matches, err := t.store.Query(ctx, settings.Namespace, vectors[0], topK)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return TextResult("No relevant passages found in the knowledge base."), nil
			}

			out := make([]domain.KnowledgeMatch, 0, len(matches))
			for _, m := range matches {
				km := domain.KnowledgeMatch{}
				if s, ok := m.Metadata["source"].(string); ok {
					km.Source = s
				}
				if txt, ok := m.Metadata["text"].(string); ok {
					km.Text = txt
				}
				if km.Text == "" {
					continue
				}
				out = append(out, km)
			}

			t.logger.Debug("knowledge base queried", "query", p.Query, "matches", len(out))
			return out, nil
		},
	)
}

var (
	_ domain.Tool              = (*KnowledgeBaseTool)(nil)
	_ domain.SettingsValidator = (*KnowledgeBaseTool)(nil)
)
