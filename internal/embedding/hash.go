package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// HashModelID is persisted with embeddings produced by the fallback embedder
// so stored vectors are distinguishable from real model output.
const HashModelID = "hash-fallback"

// HashEmbedder is the deterministic offline fallback: a sha256 digest of the
// text seeds a PRNG that fills a fixed-dimension vector. The same text always
// yields a bit-identical vector; different texts yield different vectors.
// The vectors carry no semantic meaning and exist so ingestion and retrieval
// keep working when no embedding model is reachable.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a fallback embedder of the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 48
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the deterministic pseudo-embedding for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	digest := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(digest[:8]))
	rng := rand.New(rand.NewSource(seed))
	vec := make([]float32, e.dimensions)
	for i := range vec {
		vec[i] = float32(rng.Float64())
	}
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the fallback model identifier.
func (e *HashEmbedder) ModelID() string {
	return HashModelID
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
