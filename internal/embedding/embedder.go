// Package embedding produces vector embeddings for chunk and query text.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text.
// All vectors from one instance share the same dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelID identifies the model that produced the vectors; it is persisted
	// alongside each embedding row.
	ModelID() string
	Close() error
}
