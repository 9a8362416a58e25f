package embedding

import (
	"context"
	"reflect"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(48)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical text must produce bit-identical vectors")
	}
}

func TestHashEmbedder_DistinctTexts(t *testing.T) {
	e := NewHashEmbedder(48)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "alpha")
	b, _ := e.Embed(ctx, "beta")
	if reflect.DeepEqual(a, b) {
		t.Error("distinct texts should produce distinct vectors")
	}
}

func TestHashEmbedder_FixedDimension(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{"one", "two", "three"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for _, v := range vecs {
		if len(v) != 32 {
			t.Errorf("vector dimension %d, want 32", len(v))
		}
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions=%d", e.Dimensions())
	}
	if e.ModelID() != HashModelID {
		t.Errorf("ModelID=%q", e.ModelID())
	}
}

func TestHashEmbedder_DefaultDimension(t *testing.T) {
	e := NewHashEmbedder(0)
	if e.Dimensions() != 48 {
		t.Errorf("Dimensions=%d, want 48", e.Dimensions())
	}
}
