package vector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_AddSearchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir, "bot-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}}
	if err := s.Add(ctx, []string{"A", "B"}, vecs); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != "A" || results[1].ChunkID != "B" {
		t.Errorf("order=%s,%s, want A,B", results[0].ChunkID, results[1].ChunkID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestStore_DimensionMismatchLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir, "bot-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Add(ctx, []string{"A"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	err = s.Add(ctx, []string{"B", "C"}, [][]float32{{0, 1, 0}, {1, 2}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err=%v, want ErrDimensionMismatch", err)
	}
	// Whole batch rejected: B must not be present either.
	if s.Len() != 1 {
		t.Errorf("Len=%d, want 1", s.Len())
	}
	results, err := s.Search(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ChunkID != "A" {
		t.Errorf("results=%v", results)
	}
}

func TestStore_SearchQueryDimensionValidated(t *testing.T) {
	s, err := Open(t.TempDir(), "bot-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err=%v, want ErrDimensionMismatch", err)
	}
}

func TestStore_TopKZeroReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_ = s.Add(ctx, []string{"A"}, [][]float32{{1, 0}})

	for _, k := range []int{0, -5} {
		results, err := s.Search(ctx, []float32{1, 0}, k)
		if err != nil {
			t.Fatalf("topK=%d: %v", k, err)
		}
		if len(results) != 0 {
			t.Errorf("topK=%d returned %d results", k, len(results))
		}
	}
}

func TestStore_EmptyIndexSearch(t *testing.T) {
	s, err := Open(t.TempDir(), "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index", len(results))
	}
}

func TestStore_FewerThanTopK(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_ = s.Add(ctx, []string{"A", "B"}, [][]float32{{1, 0}, {0, 1}})
	results, err := s.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	query := []float32{0.7, 0.3, 0}

	s, err := Open(dir, "bot-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, []string{"A", "B", "C"}, [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0}}); err != nil {
		t.Fatal(err)
	}
	before, err := s.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := Open(dir, "bot-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	after, err := reopened.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("result count changed after reopen: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("result %d changed after reopen: %v vs %v", i, before[i], after[i])
		}
	}
}

func TestStore_PersistedDimensionAuthoritative(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir, "bot-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Add(ctx, []string{"A"}, [][]float32{{1, 0, 0}})
	s.Close()

	// Caller passes a different dimension; the stored one wins.
	reopened, err := Open(dir, "bot-1", 8)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Dimension() != 3 {
		t.Errorf("Dimension=%d, want 3", reopened.Dimension())
	}
	err = reopened.Add(ctx, []string{"B"}, [][]float32{{1, 0, 0, 0, 0, 0, 0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err=%v, want ErrDimensionMismatch", err)
	}
}

func TestStore_CorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir, "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Add(ctx, []string{"A", "B"}, [][]float32{{1, 0}, {0, 1}})
	s.Close()

	// Tamper with the metadata: drop one chunk id.
	metaPath := filepath.Join(dir, "bot-1.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	meta.ChunkIDs = meta.ChunkIDs[:1]
	tampered, _ := json.Marshal(meta)
	if err := os.WriteFile(metaPath, tampered, 0644); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	_, err = reopened.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("err=%v, want ErrCorruptIndex", err)
	}
}

func TestStore_IsolatedPerChatbot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, err := Open(dir, "bot-a", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(dir, "bot-b", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_ = a.Add(ctx, []string{"A"}, [][]float32{{1, 0}})
	if b.Len() != 0 {
		t.Errorf("bot-b sees bot-a's vectors")
	}
	results, err := b.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("bot-b search returned %d results", len(results))
	}
}

func TestStore_MetadataFormat(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Add(context.Background(), []string{"A"}, [][]float32{{1, 0}})
	s.Close()

	data, err := os.ReadFile(filepath.Join(dir, "bot-1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["chunk_ids"]; !ok {
		t.Error("metadata missing chunk_ids")
	}
	if dim, ok := raw["dimension"].(float64); !ok || int(dim) != 2 {
		t.Errorf("metadata dimension=%v", raw["dimension"])
	}
}

func TestRemoveDeletesArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Add(context.Background(), []string{"A"}, [][]float32{{1, 0}})
	s.Close()

	if err := Remove(dir, "bot-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bot-1.json")); !os.IsNotExist(err) {
		t.Errorf("metadata still present: %v", err)
	}

	reopened, err := Open(dir, "bot-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Len() != 0 {
		t.Errorf("Len=%d after remove", reopened.Len())
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	if err := Remove(t.TempDir(), "never-indexed"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Remove(t.TempDir(), ""); err == nil {
		t.Error("expected error for empty chatbot id")
	}
}
