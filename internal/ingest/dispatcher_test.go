package ingest

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/vector"
)

func TestDispatcherProcessesInBackground(t *testing.T) {
	env := newTestEnv(t, 500, 50)
	doc := env.upload(t, "notes.txt", "text/plain", "some document text")

	d := NewDispatcher(env.pipeline, zap.NewNop())
	d.Dispatch(env.bot.ID, doc.ID)
	d.Wait()

	got, err := env.store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusReady {
		t.Errorf("status=%s error=%q", got.Status, got.Error)
	}
}

func TestDispatcherSerializesPerChatbot(t *testing.T) {
	env := newTestEnv(t, 500, 50)
	ctx := context.Background()

	const n = 8
	docs := make([]*models.Document, n)
	for i := range docs {
		docs[i] = env.upload(t, fmt.Sprintf("doc%d.txt", i), "text/plain",
			fmt.Sprintf("document number %d content", i))
	}

	d := NewDispatcher(env.pipeline, zap.NewNop())
	for _, doc := range docs {
		d.Dispatch(env.bot.ID, doc.ID)
	}
	d.Wait()

	for _, doc := range docs {
		got, err := env.store.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.StatusReady {
			t.Errorf("doc %s status=%s error=%q", doc.FileName, got.Status, got.Error)
		}
	}

	index, err := vector.Open(env.vectorDir, env.bot.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	if index.Len() != n {
		t.Errorf("index has %d vectors, want %d", index.Len(), n)
	}
}
