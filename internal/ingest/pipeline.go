// Package ingest runs uploaded documents through extraction, chunking,
// embedding and indexing, tracking progress via document status.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/blobstore"
	"github.com/substratehq/docbot/internal/chunker"
	"github.com/substratehq/docbot/internal/embedding"
	"github.com/substratehq/docbot/internal/extract"
	"github.com/substratehq/docbot/internal/keyword"
	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/storage"
	"github.com/substratehq/docbot/internal/vector"
	"github.com/substratehq/docbot/pkg/utils"
)

// Pipeline processes one document at a time from upload to ready.
type Pipeline struct {
	store     storage.Storage
	blobs     blobstore.Store
	embedder  embedding.Embedder
	keywords  *keyword.Index
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	vectorDir string
	logger    *zap.Logger
}

// NewPipeline wires the ingestion stages together. keywords may be nil to
// skip keyword indexing.
func NewPipeline(
	store storage.Storage,
	blobs blobstore.Store,
	embedder embedding.Embedder,
	keywords *keyword.Index,
	ch *chunker.Chunker,
	vectorDir string,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:     store,
		blobs:     blobs,
		embedder:  embedder,
		keywords:  keywords,
		extractor: extract.NewExtractor(),
		chunker:   ch,
		vectorDir: vectorDir,
		logger:    logger,
	}
}

// Process ingests the document with the given ID. The document moves from
// pending to processing, then to ready on success or failed with an error
// message on any step failure.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	if err := p.store.SetDocumentStatus(ctx, doc.ID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark document processing: %w", err)
	}

	start := time.Now()
	if err := p.run(ctx, doc); err != nil {
		p.logger.Warn("document ingestion failed",
			zap.String("document_id", doc.ID),
			zap.String("file_name", doc.FileName),
			zap.Error(err))
		// Error messages are user-visible via document status; keep them bounded.
		msg := utils.Truncate(err.Error(), 500)
		if statusErr := p.store.SetDocumentStatus(ctx, doc.ID, models.StatusFailed, msg); statusErr != nil {
			p.logger.Error("failed to record failure status",
				zap.String("document_id", doc.ID),
				zap.Error(statusErr))
		}
		return err
	}

	if err := p.store.SetDocumentStatus(ctx, doc.ID, models.StatusReady, ""); err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	p.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("file_name", doc.FileName),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (p *Pipeline) run(ctx context.Context, doc *models.Document) error {
	rc, err := p.blobs.Fetch(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch document content: %w", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read document content: %w", err)
	}

	text, err := p.extractor.ExtractBytes(content, doc.MimeType)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	pieces := p.chunker.Split(text)
	if len(pieces) == 0 {
		return fmt.Errorf("no textual content detected in document")
	}

	vectors, err := p.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(pieces) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	dimension := len(vectors[0])
	modelID := p.embedder.ModelID()
	now := time.Now().UTC()

	chunks := make([]*models.Chunk, len(pieces))
	embeddings := make([]*models.Embedding, len(pieces))
	chunkIDs := make([]string, len(pieces))
	for i, piece := range pieces {
		chunkID := uuid.New().String()
		chunkIDs[i] = chunkID
		chunks[i] = &models.Chunk{
			ID:         chunkID,
			DocumentID: doc.ID,
			ChatbotID:  doc.ChatbotID,
			ChunkIndex: i,
			Content:    piece,
			TokenCount: len(strings.Fields(piece)),
			CreatedAt:  now,
		}
		embeddings[i] = &models.Embedding{
			ID:        uuid.New().String(),
			ChunkID:   chunkID,
			Dimension: dimension,
			Model:     modelID,
			Vector:    vectors[i],
			CreatedAt: now,
		}
	}

	if err := p.store.BatchCreateChunks(ctx, chunks, embeddings); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	index, err := vector.Open(p.vectorDir, doc.ChatbotID, dimension)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	if err := index.Add(ctx, chunkIDs, vectors); err != nil {
		index.Close()
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := index.Close(); err != nil {
		return fmt.Errorf("close vector index: %w", err)
	}

	if p.keywords != nil {
		if err := p.keywords.IndexChunks(ctx, chunks); err != nil {
			// Keyword search is a secondary surface; retrieval still works
			// without it, so an indexing failure does not fail the document.
			p.logger.Warn("keyword indexing failed",
				zap.String("document_id", doc.ID),
				zap.Error(err))
		}
	}

	return nil
}
