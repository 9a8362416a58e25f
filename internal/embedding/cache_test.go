package embedding

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
)

// countingEmbedder wraps HashEmbedder and counts inner calls.
type countingEmbedder struct {
	*HashEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("cached vector differs")
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("inner called %d times, want 1", n)
	}
}

func TestCachedEmbedder_BatchMixesHitsAndMisses(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := e.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(ctx, []string{"a", "b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if !reflect.DeepEqual(vecs[0], vecs[2]) {
		t.Error("same text must map to same vector")
	}
	// 1 for the warm-up, 1 for the single miss "b".
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("inner calls=%d, want 2", n)
	}
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	e := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "a"} {
		if _, err := e.Embed(ctx, text); err != nil {
			t.Fatal(err)
		}
	}
	// "a" was evicted by "c", so it is recomputed: 4 inner calls total.
	if n := inner.calls.Load(); n != 4 {
		t.Errorf("inner calls=%d, want 4", n)
	}
}

func TestNewCachedEmbedder_ZeroCapacityPassthrough(t *testing.T) {
	inner := NewHashEmbedder(8)
	if e := NewCachedEmbedder(inner, 0); e != Embedder(inner) {
		t.Error("zero capacity should return the inner embedder unchanged")
	}
}
