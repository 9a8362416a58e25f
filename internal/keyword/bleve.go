// Package keyword provides a Bleve-backed keyword index over ingested chunks.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/substratehq/docbot/internal/models"
)

// chunkDoc is the shape indexed per chunk.
type chunkDoc struct {
	ChatbotID  string `json:"chatbot_id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

// Result is one keyword search hit.
type Result struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// Index wraps a Bleve index of chunks, filterable by chatbot.
type Index struct {
	index bleve.Index
}

// NewIndex creates or opens a Bleve index at path.
// An existing index is reopened as-is; if the mapping in code changes, remove
// the index directory to force a rebuild.
func NewIndex(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	contentMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query term
	// matches the exact word it was indexed as.
	contentMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", contentMapping)

	idMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("chatbot_id", idMapping)
	docMapping.AddFieldMappingsAt("document_id", idMapping)

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{index: index}, nil
}

// IndexChunks indexes the chunks in one batch, keyed by chunk ID.
func (x *Index) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := x.index.NewBatch()
	for _, chunk := range chunks {
		doc := chunkDoc{
			ChatbotID:  chunk.ChatbotID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
		}
		if err := batch.Index(chunk.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("commit keyword batch: %w", err)
	}
	return nil
}

// DeleteChunks removes the given chunk IDs from the index.
func (x *Index) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	batch := x.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("commit keyword delete batch: %w", err)
	}
	return nil
}

// Search runs a match query over chunk content, restricted to one chatbot,
// and returns up to limit hits ordered by descending score.
func (x *Index) Search(ctx context.Context, chatbotID, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	scopeQuery := bleve.NewTermQuery(chatbotID)
	scopeQuery.SetField("chatbot_id")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(scopeQuery, matchQuery))
	req.Size = limit
	req.Fields = []string{"document_id"}

	results, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		res := &Result{ChunkID: hit.ID, Score: hit.Score}
		if docID, ok := hit.Fields["document_id"].(string); ok {
			res.DocumentID = docID
		}
		out = append(out, res)
	}
	return out, nil
}

// DocCount returns the number of indexed chunks.
func (x *Index) DocCount() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the underlying Bleve index.
func (x *Index) Close() error {
	return x.index.Close()
}
