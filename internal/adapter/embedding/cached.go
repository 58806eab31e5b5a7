package embedding

import (
	"container/list"
	"context"
	"sync"

	"smart-query/internal/domain"
)

// CachedEmbedder adds an LRU cache in front of an EmbeddingProvider for
// single-text calls. Knowledge-base lookups embed one query at a time and
// users tend to repeat questions, so those benefit; ingestion batches are
// unique text and pass straight through.
type CachedEmbedder struct {
	inner domain.EmbeddingProvider

	mu      sync.Mutex
	maxSize int
	byKey   map[string]*list.Element // keyed on the exact input text
	recency *list.List               // least-recently-used at the front
}

type cacheSlot struct {
	key string
	vec []float32
}

// NewCachedEmbedder wraps inner with an LRU cache of maxSize vectors.
// A non-positive maxSize disables caching and returns inner unchanged.
func NewCachedEmbedder(inner domain.EmbeddingProvider, maxSize int) domain.EmbeddingProvider {
	if maxSize <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner:   inner,
		maxSize: maxSize,
		byKey:   make(map[string]*list.Element, maxSize),
		recency: list.New(),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.inner.Embed(ctx, texts)
	}

	key := texts[0]

	c.mu.Lock()
	if elem, ok := c.byKey[key]; ok {
		c.recency.MoveToBack(elem)
		vec := elem.Value.(*cacheSlot).vec
		c.mu.Unlock()
		return [][]float32{vec}, nil
	}
	c.mu.Unlock()

	result, err := c.inner.Embed(ctx, texts)
	if err != nil || len(result) == 0 {
		return result, err
	}

	c.mu.Lock()
	c.store(key, result[0])
	c.mu.Unlock()
	return result, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *CachedEmbedder) Name() string    { return c.inner.Name() }

// store must be called with c.mu held.
func (c *CachedEmbedder) store(key string, vec []float32) {
	if elem, ok := c.byKey[key]; ok {
		elem.Value.(*cacheSlot).vec = vec
		c.recency.MoveToBack(elem)
		return
	}
	if c.recency.Len() >= c.maxSize {
		oldest := c.recency.Front()
		c.recency.Remove(oldest)
		delete(c.byKey, oldest.Value.(*cacheSlot).key)
	}
	c.byKey[key] = c.recency.PushBack(&cacheSlot{key: key, vec: vec})
}

var _ domain.EmbeddingProvider = (*CachedEmbedder)(nil)
