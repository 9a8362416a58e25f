// Package models defines core data structures for chatbots, documents, chunks, and retrieval results.
package models

import "time"

// DocumentStatus tracks a document through the ingestion state machine.
type DocumentStatus string

const (
	// StatusPending means the document is uploaded but not yet picked up.
	StatusPending DocumentStatus = "pending"
	// StatusProcessing means ingestion is running.
	StatusProcessing DocumentStatus = "processing"
	// StatusReady means the document is chunked, embedded, and searchable.
	StatusReady DocumentStatus = "ready"
	// StatusFailed means ingestion stopped; Error holds the reason.
	StatusFailed DocumentStatus = "failed"
)

// Chatbot is a knowledge-base-scoped assistant configuration.
type Chatbot struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	SystemPrompt string    `json:"system_prompt" db:"system_prompt"`
	Temperature  float64   `json:"temperature" db:"temperature"`
	TopK         int       `json:"top_k" db:"top_k"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Document represents an uploaded file attached to a chatbot.
// Status and Error are mutated only by the ingestion pipeline.
type Document struct {
	ID         string         `json:"id" db:"id"`
	ChatbotID  string         `json:"chatbot_id" db:"chatbot_id"`
	FileName   string         `json:"file_name" db:"file_name"`
	MimeType   string         `json:"mime_type" db:"mime_type"`
	SizeBytes  int64          `json:"size_bytes" db:"size_bytes"`
	Checksum   string         `json:"checksum" db:"checksum"`
	StorageKey string         `json:"storage_key" db:"storage_key"`
	Status     DocumentStatus `json:"status" db:"status"`
	Error      string         `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous word-window slice of a document's extracted text.
// ChatbotID is denormalized so the vector and keyword indices can scope by chatbot.
// Chunks are immutable once written; ChunkIndex ordering is significant.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	ChatbotID  string    `json:"chatbot_id" db:"chatbot_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	TokenCount int       `json:"token_count" db:"token_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Embedding stores the vector produced for one chunk, one-to-one.
type Embedding struct {
	ID        string    `json:"id" db:"id"`
	ChunkID   string    `json:"chunk_id" db:"chunk_id"`
	Dimension int       `json:"dimension" db:"dimension"`
	Model     string    `json:"model" db:"model"`
	Vector    []float32 `json:"-" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RetrievedChunk is the query-time result of a similarity search, never persisted.
type RetrievedChunk struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

// Turn is one prior conversation message in the provider's two-role vocabulary.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
