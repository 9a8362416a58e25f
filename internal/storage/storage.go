// Package storage defines relational persistence for chatbots, documents,
// chunks, and embedding rows.
package storage

import (
	"context"
	"errors"

	"github.com/substratehq/docbot/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ChunkWithDocument pairs a chunk with its parent document's display name,
// as needed by retrieval-time context assembly.
type ChunkWithDocument struct {
	Chunk        models.Chunk
	DocumentName string
}

// Storage defines chatbot, document, chunk, and embedding persistence.
type Storage interface {
	// Chatbot operations
	CreateChatbot(ctx context.Context, bot *models.Chatbot) error
	GetChatbot(ctx context.Context, id string) (*models.Chatbot, error)
	ListChatbots(ctx context.Context) ([]*models.Chatbot, error)

	// Document operations. Status and error are mutated only through
	// SetDocumentStatus, which the ingestion pipeline owns.
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	SetDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error
	ListDocumentsByChatbot(ctx context.Context, chatbotID string) ([]*models.Document, error)

	// Chunk operations. BatchCreateChunks writes chunks and their embedding
	// rows in one transaction; chunks[i] and embeddings[i] are paired.
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk, embeddings []*models.Embedding) error
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	// GetChunksByIDs returns chunks with their document names, scoped to one
	// chatbot. Order is unspecified; callers re-order by their own ranking.
	GetChunksByIDs(ctx context.Context, chatbotID string, ids []string) ([]*ChunkWithDocument, error)
	// ListEmbeddingsByChatbot returns all embedding rows for a chatbot's
	// chunks in ingestion order (document creation time, then chunk index).
	// Used to rebuild a chatbot's vector index from relational state.
	ListEmbeddingsByChatbot(ctx context.Context, chatbotID string) ([]*models.Embedding, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
