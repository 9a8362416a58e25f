// Package rag answers chat messages by retrieving relevant chunks and
// prompting a generation backend with them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/embedding"
	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/provider"
	"github.com/substratehq/docbot/internal/storage"
	"github.com/substratehq/docbot/internal/vector"
)

// ErrEmptyMessage is returned when the chat message is blank.
var ErrEmptyMessage = errors.New("message must not be empty")

// ErrGeneration wraps failures of the generation backend, so callers can tell
// an unreachable provider apart from a bad request.
var ErrGeneration = errors.New("generation failed")

// behaviorPrompt sets the ground rules for every chatbot; the per-chatbot
// system prompt is appended after it.
const behaviorPrompt = `You are a helpful assistant that answers questions using the provided context.
Base your answers on the context sections below. If the context does not contain
the information needed to answer, say so instead of guessing.`

// Answer is a generated reply plus the chunks it was grounded on.
type Answer struct {
	Reply   string                  `json:"reply"`
	Sources []models.RetrievedChunk `json:"sources"`
}

// Responder orchestrates retrieval and generation for one chat turn.
type Responder struct {
	store           storage.Storage
	embedder        embedding.Embedder
	provider        provider.Provider
	vectorDir       string
	defaultTopK     int
	maxOutputTokens int
	logger          *zap.Logger
}

// NewResponder wires the retrieval and generation stages together.
func NewResponder(
	store storage.Storage,
	embedder embedding.Embedder,
	prov provider.Provider,
	vectorDir string,
	defaultTopK int,
	maxOutputTokens int,
	logger *zap.Logger,
) *Responder {
	return &Responder{
		store:           store,
		embedder:        embedder,
		provider:        prov,
		vectorDir:       vectorDir,
		defaultTopK:     defaultTopK,
		maxOutputTokens: maxOutputTokens,
		logger:          logger,
	}
}

// Respond retrieves context for the message and generates a reply. history
// holds prior turns, oldest first; roles other than user/model/assistant are
// dropped. topK <= 0 falls back to the chatbot's configured value, then the
// service default.
func (r *Responder) Respond(ctx context.Context, chatbotID, message string, history []models.Turn, topK int) (*Answer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	bot, err := r.store.GetChatbot(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("load chatbot: %w", err)
	}

	if topK <= 0 {
		topK = bot.TopK
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	sources, err := r.Retrieve(ctx, chatbotID, message, topK)
	if err != nil {
		return nil, err
	}

	turns := normalizeHistory(history)
	turns = append(turns, models.Turn{Role: "user", Content: composePrompt(sources, message)})

	systemPrompt := behaviorPrompt
	if strings.TrimSpace(bot.SystemPrompt) != "" {
		systemPrompt = systemPrompt + "\n\n" + strings.TrimSpace(bot.SystemPrompt)
	}

	reply, err := r.provider.Generate(ctx, systemPrompt, turns, provider.Params{
		Temperature: bot.Temperature,
		MaxTokens:   r.maxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	return &Answer{Reply: reply, Sources: sources}, nil
}

// Retrieve embeds the query and returns the top-k most similar chunks for
// the chatbot, highest score first. A chatbot with no ingested documents
// yields an empty result, not an error.
func (r *Responder) Retrieve(ctx context.Context, chatbotID, query string, topK int) ([]models.RetrievedChunk, error) {
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	index, err := vector.Open(r.vectorDir, chatbotID, len(queryVector))
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	defer index.Close()

	hits, err := index.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// Dedupe keeping the best-ranked occurrence, and drop IDs that are not
	// well-formed UUIDs (a tampered index file can surface garbage here).
	seen := make(map[string]struct{}, len(hits))
	ranked := make([]vector.Result, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.ChunkID]; ok {
			continue
		}
		if _, err := uuid.Parse(hit.ChunkID); err != nil {
			r.logger.Warn("skipping malformed chunk id from vector index",
				zap.String("chatbot_id", chatbotID),
				zap.String("chunk_id", hit.ChunkID))
			continue
		}
		seen[hit.ChunkID] = struct{}{}
		ranked = append(ranked, hit)
	}

	ids := make([]string, len(ranked))
	for i, hit := range ranked {
		ids[i] = hit.ChunkID
	}
	rows, err := r.store.GetChunksByIDs(ctx, chatbotID, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]*storage.ChunkWithDocument, len(rows))
	for _, row := range rows {
		byID[row.Chunk.ID] = row
	}

	out := make([]models.RetrievedChunk, 0, len(ranked))
	for _, hit := range ranked {
		row, ok := byID[hit.ChunkID]
		if !ok {
			// Index entry with no relational row; skip rather than serve a
			// chunk we cannot attribute.
			continue
		}
		out = append(out, models.RetrievedChunk{
			ChunkID:      row.Chunk.ID,
			DocumentID:   row.Chunk.DocumentID,
			DocumentName: row.DocumentName,
			Score:        hit.Score,
			Content:      row.Chunk.Content,
		})
	}
	return out, nil
}

// composePrompt formats the retrieved chunks and the question into the final
// user turn.
func composePrompt(sources []models.RetrievedChunk, message string) string {
	if len(sources) == 0 {
		return "No context is available for this question.\n\nQuestion: " + message
	}
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] Source: %s (score: %.3f)\n%s\n\n", i+1, src.DocumentName, src.Score, src.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(message)
	return b.String()
}

// normalizeHistory maps prior turns onto the two roles the provider
// understands and drops anything else.
func normalizeHistory(history []models.Turn) []models.Turn {
	out := make([]models.Turn, 0, len(history))
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch turn.Role {
		case "user":
			out = append(out, models.Turn{Role: "user", Content: content})
		case "model", "assistant":
			out = append(out, models.Turn{Role: "model", Content: content})
		}
	}
	return out
}
