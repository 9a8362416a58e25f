package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/blobstore"
	"github.com/substratehq/docbot/internal/chunker"
	"github.com/substratehq/docbot/internal/embedding"
	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/storage"
	"github.com/substratehq/docbot/internal/vector"
)

type testEnv struct {
	store     *storage.SQLiteStorage
	blobs     *blobstore.LocalStore
	pipeline  *Pipeline
	vectorDir string
	bot       *models.Chatbot
}

func newTestEnv(t *testing.T, chunkSize, chunkOverlap int) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "docbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blobstore.NewLocalStore(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}

	bot := &models.Chatbot{ID: uuid.New().String(), Name: "test-bot", TopK: 4}
	if err := store.CreateChatbot(context.Background(), bot); err != nil {
		t.Fatal(err)
	}

	vectorDir := filepath.Join(dir, "vectors")
	pipeline := NewPipeline(
		store, blobs, embedding.NewHashEmbedder(8), nil,
		chunker.New(chunkSize, chunkOverlap), vectorDir, zap.NewNop(),
	)
	return &testEnv{store: store, blobs: blobs, pipeline: pipeline, vectorDir: vectorDir, bot: bot}
}

func (e *testEnv) upload(t *testing.T, name, mimeType, content string) *models.Document {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{
		ID:         uuid.New().String(),
		ChatbotID:  e.bot.ID,
		FileName:   name,
		MimeType:   mimeType,
		SizeBytes:  int64(len(content)),
		StorageKey: e.bot.ID + "/" + name,
		Status:     models.StatusPending,
	}
	err := e.blobs.Put(ctx, doc.StorageKey, strings.NewReader(content), doc.SizeBytes, mimeType)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestProcessTextDocument(t *testing.T) {
	env := newTestEnv(t, 2, 0)
	ctx := context.Background()
	doc := env.upload(t, "notes.txt", "text/plain", "alpha beta gamma")

	if err := env.pipeline.Process(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}

	got, err := env.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusReady {
		t.Fatalf("status=%s error=%q", got.Status, got.Error)
	}

	chunks, err := env.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Content != "alpha beta" || chunks[1].Content != "gamma" {
		t.Errorf("chunks: %q, %q", chunks[0].Content, chunks[1].Content)
	}

	index, err := vector.Open(env.vectorDir, env.bot.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	if index.Len() != 2 {
		t.Errorf("index has %d vectors, want 2", index.Len())
	}
	if index.Dimension() != 8 {
		t.Errorf("index dimension=%d, want 8", index.Dimension())
	}
}

func TestProcessUnsupportedType(t *testing.T) {
	env := newTestEnv(t, 500, 50)
	ctx := context.Background()
	doc := env.upload(t, "archive.zip", "application/zip", "PK\x03\x04")

	if err := env.pipeline.Process(ctx, doc.ID); err == nil {
		t.Fatal("expected error")
	}

	got, _ := env.store.GetDocument(ctx, doc.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status=%s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected error message on failed document")
	}

	chunks, err := env.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("failed document produced %d chunks", len(chunks))
	}
}

func TestProcessEmptyDocument(t *testing.T) {
	env := newTestEnv(t, 500, 50)
	ctx := context.Background()
	doc := env.upload(t, "blank.txt", "text/plain", "   \n\t  ")

	if err := env.pipeline.Process(ctx, doc.ID); err == nil {
		t.Fatal("expected error")
	}

	got, _ := env.store.GetDocument(ctx, doc.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status=%s", got.Status)
	}
	if !strings.Contains(got.Error, "no textual content") {
		t.Errorf("error=%q", got.Error)
	}
}

func TestProcessMissingDocument(t *testing.T) {
	env := newTestEnv(t, 500, 50)
	if err := env.pipeline.Process(context.Background(), "missing-id"); err == nil {
		t.Fatal("expected error")
	}
}

func TestProcessAccumulatesAcrossDocuments(t *testing.T) {
	env := newTestEnv(t, 10, 0)
	ctx := context.Background()

	first := env.upload(t, "one.txt", "text/plain", "first document body")
	second := env.upload(t, "two.txt", "text/plain", "second document body")
	if err := env.pipeline.Process(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.pipeline.Process(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	index, err := vector.Open(env.vectorDir, env.bot.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	if index.Len() != 2 {
		t.Errorf("index has %d vectors, want 2", index.Len())
	}
}
