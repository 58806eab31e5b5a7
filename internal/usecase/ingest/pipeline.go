package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"smart-query/internal/domain"
)

// DefaultUpsertBatchSize bounds how many vectors go into a single upsert
// request.
const DefaultUpsertBatchSize = 50

// Fetcher retrieves a document and extracts its text, one entry per page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]domain.DocumentPage, error)
}

// Params identifies the document to ingest and where its vectors land.
type Params struct {
	DocumentURL string
	IndexName   string
	Namespace   string
}

// Result reports what an ingestion run produced.
type Result struct {
	Pages    int `json:"pages"`
	Chunks   int `json:"chunks"`
	Upserted int `json:"upserted"`
}

// Pipeline turns a source document into searchable vectors: fetch and
// extract, split into overlapping chunks, embed, and upsert in batches.
type Pipeline struct {
	fetcher   Fetcher
	embedder  domain.EmbeddingProvider
	store     domain.VectorStore
	splitter  *Splitter
	batchSize int
	logger    *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSplitter overrides the default chunking parameters.
func WithSplitter(s *Splitter) PipelineOption {
	return func(p *Pipeline) { p.splitter = s }
}

// WithBatchSize overrides the upsert batch size.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewPipeline wires an ingestion pipeline over the given fetcher, embedder
// and vector store.
func NewPipeline(fetcher Fetcher, embedder domain.EmbeddingProvider, store domain.VectorStore, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		fetcher:   fetcher,
		embedder:  embedder,
		store:     store,
		splitter:  NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		batchSize: DefaultUpsertBatchSize,
		logger:    logger.With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a full ingestion of one document. A non-empty IndexName must
// match the configured store; vectors land in the requested namespace.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Result, error) {
	if params.DocumentURL == "" {
		return nil, domain.NewDomainError("ingest.run", domain.ErrInvalidToolArgs, "document_url is required")
	}
	if params.IndexName != "" && params.IndexName != p.store.Name() {
		return nil, domain.NewDomainError("ingest.run", domain.ErrConfigurationMissing,
			fmt.Sprintf("index %q is not configured (have %q)", params.IndexName, p.store.Name()))
	}

	pages, err := p.fetcher.Fetch(ctx, params.DocumentURL)
	if err != nil {
		return nil, domain.WrapOp("ingest.fetch", err)
	}

	chunks := p.splitPages(pages)
	p.logger.Info("document split",
		"url", params.DocumentURL,
		"pages", len(pages),
		"chunks", len(chunks))

	upserted := 0
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		n, err := p.upsertBatch(ctx, params, chunks[start:end], start)
		if err != nil {
			return nil, err
		}
		upserted += n
	}

	p.logger.Info("ingestion complete",
		"url", params.DocumentURL,
		"namespace", params.Namespace,
		"upserted", upserted)

	return &Result{Pages: len(pages), Chunks: len(chunks), Upserted: upserted}, nil
}

func (p *Pipeline) splitPages(pages []domain.DocumentPage) []domain.Chunk {
	var chunks []domain.Chunk
	for _, page := range pages {
		for _, piece := range p.splitter.Split(page.Text) {
			chunks = append(chunks, domain.Chunk{
				Text:       piece.Text,
				Page:       page.Number,
				StartIndex: piece.StartIndex,
			})
		}
	}
	return chunks
}

// upsertBatch embeds one batch of chunks and writes the vectors. offset is
// the index of the first chunk in the overall document, used for stable IDs.
func (p *Pipeline) upsertBatch(ctx context.Context, params Params, batch []domain.Chunk, offset int) (int, error) {
	docKey := documentKey(params.DocumentURL)

	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, domain.WrapOp("ingest.embed", err)
	}
	if len(vectors) != len(batch) {
		return 0, domain.NewDomainError("ingest.embed", domain.ErrEmbeddingFailed,
			fmt.Sprintf("got %d vectors for %d texts", len(vectors), len(batch)))
	}

	records := make([]domain.VectorRecord, 0, len(batch))
	for i, chunk := range batch {
		chunkID := fmt.Sprintf("%s-%d", docKey, offset+i)
		records = append(records, domain.VectorRecord{
			ID:     chunkID,
			Values: vectors[i],
			Metadata: map[string]any{
				"source":      params.DocumentURL,
				"page":        chunk.Page,
				"start_index": chunk.StartIndex,
				"chunk_id":    chunkID,
				"text":        chunk.Text,
			},
		})
	}

	if err := p.store.Upsert(ctx, params.Namespace, records); err != nil {
		return 0, domain.WrapOp("ingest.upsert", err)
	}
	return len(records), nil
}

// documentKey derives a short stable identifier from the source URL so that
// re-ingesting the same document overwrites its previous vectors.
func documentKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", sum[:8])
}
