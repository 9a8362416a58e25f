package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/provider"
	"github.com/substratehq/docbot/internal/storage"
	"github.com/substratehq/docbot/internal/vector"
)

// fixedEmbedder maps known texts to preset vectors.
type fixedEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (e *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	v, ok := e.vectors[text]
	if !ok {
		return []float32{0, 0}, nil
	}
	return v, nil
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int { return 2 }
func (e *fixedEmbedder) ModelID() string { return "fixed" }
func (e *fixedEmbedder) Close() error    { return nil }

type ragEnv struct {
	store     *storage.SQLiteStorage
	embedder  *fixedEmbedder
	provider  *provider.StaticProvider
	responder *Responder
	vectorDir string
	bot       *models.Chatbot
	chunkIDs  []string
}

// newRagEnv stores two chunks with orthogonal vectors so query vectors pick a
// winner deterministically.
func newRagEnv(t *testing.T) *ragEnv {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "docbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	bot := &models.Chatbot{
		ID:           uuid.New().String(),
		Name:         "test-bot",
		SystemPrompt: "Answer tersely.",
		Temperature:  0.3,
		TopK:         4,
	}
	if err := store.CreateChatbot(ctx, bot); err != nil {
		t.Fatal(err)
	}

	doc := &models.Document{
		ID: uuid.New().String(), ChatbotID: bot.ID, FileName: "guide.txt",
		MimeType: "text/plain", StorageKey: "k", Status: models.StatusReady,
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	contents := []string{"cats are mammals", "go is a language"}
	vectors := [][]float32{{1, 0}, {0, 1}}
	chunkIDs := make([]string, 2)
	var chunks []*models.Chunk
	var embs []*models.Embedding
	for i, content := range contents {
		chunkIDs[i] = uuid.New().String()
		chunks = append(chunks, &models.Chunk{
			ID: chunkIDs[i], DocumentID: doc.ID, ChatbotID: bot.ID,
			ChunkIndex: i, Content: content,
		})
		embs = append(embs, &models.Embedding{
			ID: uuid.New().String(), ChunkID: chunkIDs[i], Dimension: 2,
			Model: "fixed", Vector: vectors[i],
		})
	}
	if err := store.BatchCreateChunks(ctx, chunks, embs); err != nil {
		t.Fatal(err)
	}

	vectorDir := filepath.Join(dir, "vectors")
	index, err := vector.Open(vectorDir, bot.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Add(ctx, chunkIDs, vectors); err != nil {
		t.Fatal(err)
	}
	if err := index.Close(); err != nil {
		t.Fatal(err)
	}

	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"about cats": {1, 0.2},
		"about go":   {0.2, 1},
	}}
	prov := &provider.StaticProvider{Reply: "canned answer"}
	responder := NewResponder(store, embedder, prov, vectorDir, 4, 512, zap.NewNop())
	return &ragEnv{
		store: store, embedder: embedder, provider: prov,
		responder: responder, vectorDir: vectorDir, bot: bot, chunkIDs: chunkIDs,
	}
}

func TestRespondEmptyMessage(t *testing.T) {
	env := newRagEnv(t)
	_, err := env.responder.Respond(context.Background(), env.bot.ID, "   ", nil, 0)
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err=%v, want ErrEmptyMessage", err)
	}
	if env.embedder.calls != 0 {
		t.Error("embedder called for empty message")
	}
	if env.provider.LastTurns != nil {
		t.Error("provider called for empty message")
	}
}

func TestRespondRanksAndComposes(t *testing.T) {
	env := newRagEnv(t)
	answer, err := env.responder.Respond(context.Background(), env.bot.ID, "about cats", nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	if answer.Reply != "canned answer" {
		t.Errorf("Reply=%q", answer.Reply)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("got %d sources", len(answer.Sources))
	}
	if answer.Sources[0].Content != "cats are mammals" {
		t.Errorf("top source: %+v", answer.Sources[0])
	}
	if answer.Sources[0].Score < answer.Sources[1].Score {
		t.Errorf("sources not in descending score order: %f < %f",
			answer.Sources[0].Score, answer.Sources[1].Score)
	}
	if answer.Sources[0].DocumentName != "guide.txt" {
		t.Errorf("DocumentName=%q", answer.Sources[0].DocumentName)
	}

	if !strings.Contains(env.provider.LastSystemPrompt, "Answer tersely.") {
		t.Errorf("system prompt missing chatbot prompt: %q", env.provider.LastSystemPrompt)
	}
	finalTurn := env.provider.LastTurns[len(env.provider.LastTurns)-1]
	if !strings.Contains(finalTurn.Content, "[1] Source: guide.txt") {
		t.Errorf("prompt missing context block: %q", finalTurn.Content)
	}
	if !strings.Contains(finalTurn.Content, "Question: about cats") {
		t.Errorf("prompt missing question: %q", finalTurn.Content)
	}
	if env.provider.LastParams.Temperature != 0.3 {
		t.Errorf("Temperature=%f", env.provider.LastParams.Temperature)
	}
	if env.provider.LastParams.MaxTokens != 512 {
		t.Errorf("MaxTokens=%d", env.provider.LastParams.MaxTokens)
	}
}

func TestRespondNormalizesHistory(t *testing.T) {
	env := newRagEnv(t)
	history := []models.Turn{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
		{Role: "system", Content: "should be dropped"},
		{Role: "model", Content: "  "},
	}
	_, err := env.responder.Respond(context.Background(), env.bot.ID, "about go", history, 0)
	if err != nil {
		t.Fatal(err)
	}

	turns := env.provider.LastTurns
	if len(turns) != 3 {
		t.Fatalf("got %d turns: %+v", len(turns), turns)
	}
	if turns[0].Role != "user" || turns[0].Content != "earlier question" {
		t.Errorf("turn 0: %+v", turns[0])
	}
	if turns[1].Role != "model" || turns[1].Content != "earlier answer" {
		t.Errorf("turn 1: %+v", turns[1])
	}
	if turns[2].Role != "user" {
		t.Errorf("turn 2: %+v", turns[2])
	}
}

func TestRespondCallerTopKOverride(t *testing.T) {
	env := newRagEnv(t)
	answer, err := env.responder.Respond(context.Background(), env.bot.ID, "about cats", nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(answer.Sources))
	}
	if answer.Sources[0].Content != "cats are mammals" {
		t.Errorf("top source: %+v", answer.Sources[0])
	}
}

func TestRespondProviderFailure(t *testing.T) {
	env := newRagEnv(t)
	env.provider.Err = errors.New("backend unreachable")
	_, err := env.responder.Respond(context.Background(), env.bot.ID, "about cats", nil, 0)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err=%v, want ErrGeneration", err)
	}
}

func TestRespondUnknownChatbot(t *testing.T) {
	env := newRagEnv(t)
	_, err := env.responder.Respond(context.Background(), "missing", "question", nil, 0)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	env := newRagEnv(t)
	out, err := env.responder.Retrieve(context.Background(), uuid.New().String(), "anything", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("got %d results from empty index", len(out))
	}
}

func TestRetrieveSkipsOrphanedIndexEntries(t *testing.T) {
	env := newRagEnv(t)
	ctx := context.Background()

	// Add an index entry with no chunk row behind it.
	index, err := vector.Open(env.vectorDir, env.bot.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	orphan := uuid.New().String()
	if err := index.Add(ctx, []string{orphan}, [][]float32{{5, 5}}); err != nil {
		t.Fatal(err)
	}
	if err := index.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := env.responder.Retrieve(ctx, env.bot.ID, "about cats", 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range out {
		if src.ChunkID == orphan {
			t.Error("orphaned index entry served as a source")
		}
	}
	if len(out) != 2 {
		t.Errorf("got %d sources, want 2", len(out))
	}
}
