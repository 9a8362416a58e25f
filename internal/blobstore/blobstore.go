// Package blobstore provides byte storage for uploaded document files.
package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/substratehq/docbot/internal/config"
)

// Store persists and retrieves uploaded files by storage key. The ingestion
// pipeline only reads; the upload surfaces only write.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// New creates the object store selected by cfg.Backend ("local" or "minio").
func New(cfg *config.ObjectStoreConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.LocalPath)
	case "minio":
		return NewMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unknown object store backend: %s (supported: local, minio)", cfg.Backend)
	}
}
