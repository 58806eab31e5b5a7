package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"smart-query/internal/domain"
)

// countingEmbedder records how many Embed calls reach the inner provider.
type countingEmbedder struct {
	calls atomic.Int64
	dims  int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dims)
		for j := range v {
			v[j] = float32(len(t)+i+j) / 100.0
		}
		out[i] = v
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return e.dims }
func (e *countingEmbedder) Name() string    { return "counting" }

func embedOne(t *testing.T, p domain.EmbeddingProvider, text string) []float32 {
	t.Helper()
	out, err := p.Embed(context.Background(), []string{text})
	if err != nil {
		t.Fatalf("Embed(%q): %v", text, err)
	}
	if len(out) != 1 {
		t.Fatalf("Embed(%q) returned %d vectors", text, len(out))
	}
	return out[0]
}

func TestCachedEmbedderSecondCallHits(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 10)

	first := embedOne(t, cached, "what were Q2 sales?")
	second := embedOne(t, cached, "what were Q2 sales?")

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner calls = %d, want 1", got)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d: %f vs %f", i, first[i], second[i])
		}
	}
}

func TestCachedEmbedderBatchBypassesCache(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.Embed(ctx, []string{"chunk a", "chunk b"}); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2 (batches never cached)", got)
	}
}

func TestCachedEmbedderEvictsOldest(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	cached := NewCachedEmbedder(inner, 3)

	for i := 0; i < 3; i++ {
		embedOne(t, cached, fmt.Sprintf("text-%d", i))
	}
	for i := 0; i < 3; i++ {
		embedOne(t, cached, fmt.Sprintf("text-%d", i))
	}
	if got := inner.calls.Load(); got != 3 {
		t.Fatalf("inner calls = %d, want 3 (all hits)", got)
	}

	// Fourth distinct entry pushes out text-0.
	embedOne(t, cached, "text-3")
	embedOne(t, cached, "text-0")
	if got := inner.calls.Load(); got != 5 {
		t.Errorf("inner calls = %d, want 5 (text-0 was evicted)", got)
	}

	// text-2 survived both evictions.
	embedOne(t, cached, "text-2")
	if got := inner.calls.Load(); got != 5 {
		t.Errorf("inner calls = %d, want 5 (text-2 still cached)", got)
	}
}

func TestCachedEmbedderHitPromotes(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	cached := NewCachedEmbedder(inner, 3)

	embedOne(t, cached, "a")
	embedOne(t, cached, "b")
	embedOne(t, cached, "c")
	embedOne(t, cached, "a") // promote a; b becomes the eviction candidate
	embedOne(t, cached, "d") // evicts b

	before := inner.calls.Load()
	embedOne(t, cached, "a")
	if inner.calls.Load() != before {
		t.Error("promoted entry was evicted")
	}
	embedOne(t, cached, "b")
	if inner.calls.Load() != before+1 {
		t.Error("least-recently-used entry was not evicted")
	}
}

func TestCachedEmbedderDistinctTextsDistinctEntries(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	cached := NewCachedEmbedder(inner, 10)

	// Different lengths so the counting embedder produces distinct vectors.
	a := embedOne(t, cached, "monthly ad spend by channel")
	b := embedOne(t, cached, "q3 leads")
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2 (each text gets its own entry)", got)
	}
	if a[0] == b[0] {
		t.Fatal("fixture vectors must differ for this test to mean anything")
	}

	// Repeats must return each text's own vector, not the other's.
	if got := embedOne(t, cached, "monthly ad spend by channel"); got[0] != a[0] {
		t.Errorf("first text returned a different vector on repeat")
	}
	if got := embedOne(t, cached, "q3 leads"); got[0] != b[0] {
		t.Errorf("second text returned a different vector on repeat")
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2 (repeats must hit)", got)
	}
}

func TestCachedEmbedderConcurrent(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			text := fmt.Sprintf("concurrent-%d", n%10)
			for j := 0; j < 20; j++ {
				out, err := cached.Embed(ctx, []string{text})
				if err != nil || len(out) != 1 || len(out[0]) != 3 {
					t.Errorf("Embed: out=%v err=%v", out, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	// 10 unique keys; everything past the first miss per key should hit.
	if calls := inner.calls.Load(); calls >= 1000 {
		t.Errorf("inner calls = %d, cache never hit", calls)
	}
}

func TestCachedEmbedderDelegates(t *testing.T) {
	inner := &countingEmbedder{dims: 1536}
	cached := NewCachedEmbedder(inner, 10)

	if got := cached.Dimensions(); got != 1536 {
		t.Errorf("Dimensions() = %d, want 1536", got)
	}
	if got := cached.Name(); got != "counting" {
		t.Errorf("Name() = %q, want %q", got, "counting")
	}
}

func TestNewCachedEmbedderDisabled(t *testing.T) {
	inner := &countingEmbedder{dims: 3}

	for _, size := range []int{0, -1} {
		if got := NewCachedEmbedder(inner, size); got != inner {
			t.Errorf("maxSize=%d: expected inner provider returned unchanged", size)
		}
	}
}

func TestCachedEmbedderEmptyInput(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 10)

	out, err := cached.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty result, got %d vectors", len(out))
	}
}
