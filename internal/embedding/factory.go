package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/config"
)

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache.
// Supported providers: "openai", "onnx", "hash" (default).
// When the configured model cannot be constructed (missing endpoint, no CGO,
// missing model file), New falls back to the deterministic hash embedder so
// ingestion and retrieval stay available; the downgrade is logged.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	inner, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newProvider(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions)
		if err != nil {
			logger.Warn("remote embedder unavailable, falling back to hash embedder", zap.Error(err))
			return NewHashEmbedder(cfg.Dimensions), nil
		}
		return e, nil
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to hash embedder", zap.Error(err))
			return NewHashEmbedder(cfg.Dimensions), nil
		}
		return e, nil
	case "hash", "":
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, onnx, hash)", cfg.Provider)
	}
}
