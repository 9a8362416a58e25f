// Package vector provides the per-chatbot persistent vector store and
// top-k similarity search.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's width does not match the
// store's dimension. It is a validation error; the store state is unchanged.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrCorruptIndex is returned when the persisted chunk-id list and the stored
// vector rows disagree. The store must not serve search results in that state.
var ErrCorruptIndex = errors.New("vector index corrupted")

// Result is a single similarity search hit.
type Result struct {
	ChunkID string
	Score   float64
}

// metadata is the persisted sidecar shared by both backends. The format is
// stable: a store written under one backend's availability stays inspectable
// under the other.
type metadata struct {
	ChunkIDs  []string `json:"chunk_ids"`
	Dimension int      `json:"dimension"`
}

// Store persists (vector, chunk id) rows for one chatbot and answers
// inner-product top-k queries. Vectors live in a backend blob (FAISS index or
// raw matrix, selected by availability); chunk ids and dimension live in a
// JSON metadata file. Store methods are safe for concurrent use, but two
// Store instances for the same chatbot must not write concurrently.
type Store struct {
	chatbotID string
	dimension int

	indexPath  string // FAISS blob
	metaPath   string // chunk ids + dimension
	matrixPath string // raw matrix blob (fallback backend only)

	chunkIDs []string
	backend  backend
	mu       sync.RWMutex
}

// Open loads or creates the vector store for chatbotID under dir. A dimension
// recorded in persisted metadata overrides the caller-supplied one: once a
// chatbot has indexed vectors, the persisted index is authoritative.
func Open(dir, chatbotID string, dimension int) (*Store, error) {
	if chatbotID == "" {
		return nil, fmt.Errorf("chatbot id is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	s := &Store{
		chatbotID:  chatbotID,
		dimension:  dimension,
		indexPath:  filepath.Join(dir, chatbotID+".faiss"),
		metaPath:   filepath.Join(dir, chatbotID+".json"),
		matrixPath: filepath.Join(dir, chatbotID+".bin"),
	}
	if err := s.loadMetadata(); err != nil {
		return nil, err
	}
	if s.dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	b, err := openBackend(s.indexPath, s.matrixPath, s.dimension)
	if err != nil {
		return nil, err
	}
	s.backend = b
	return s, nil
}

func (s *Store) loadMetadata() error {
	data, err := os.ReadFile(s.metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("%w: unreadable metadata for chatbot %s: %v", ErrCorruptIndex, s.chatbotID, err)
	}
	s.chunkIDs = meta.ChunkIDs
	if meta.Dimension > 0 {
		s.dimension = meta.Dimension
	}
	return nil
}

// Add appends a batch of vectors with parallel chunk ids and persists both.
// The whole batch is rejected on any dimension mismatch, leaving stored state
// unchanged. Metadata and vector data are written via temp-file-then-rename,
// so neither file is ever observed torn. The two renames are not atomic as a
// pair: in-process readers hold the RWMutex and see pre- or post-add state,
// but a separate process opening between the renames can see the counts
// disagree and gets ErrCorruptIndex from Search rather than wrong results.
func (s *Store) Add(ctx context.Context, chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("chunk ids and vectors length mismatch: %d vs %d", len(chunkIDs), len(vectors))
	}
	if len(vectors) == 0 {
		return nil
	}
	for i, vec := range vectors {
		if len(vec) != s.dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, index expects %d",
				ErrDimensionMismatch, i, len(vec), s.dimension)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.appendVectors(vectors); err != nil {
		return fmt.Errorf("append vectors: %w", err)
	}
	s.chunkIDs = append(s.chunkIDs, chunkIDs...)
	if err := s.backend.save(); err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}
	if err := s.saveMetadata(); err != nil {
		return fmt.Errorf("persist index metadata: %w", err)
	}
	return nil
}

func (s *Store) saveMetadata() error {
	meta := metadata{ChunkIDs: s.chunkIDs, Dimension: s.dimension}
	if meta.ChunkIDs == nil {
		meta.ChunkIDs = []string{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.metaPath, data)
}

// Search returns up to topK (chunk id, score) pairs in descending score
// order, ties broken by insertion order. topK <= 0 returns an empty result.
// A chunk-id/vector-count mismatch in persisted state fails the call with
// ErrCorruptIndex rather than returning misleading results.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), s.dimension)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rows := s.backend.rows(); rows != len(s.chunkIDs) {
		return nil, fmt.Errorf("%w: chatbot %s has %d chunk ids but %d stored vectors",
			ErrCorruptIndex, s.chatbotID, len(s.chunkIDs), rows)
	}
	if len(s.chunkIDs) == 0 {
		return nil, nil
	}
	hits, err := s.backend.search(query, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ChunkID: s.chunkIDs[h.row], Score: h.score}
	}
	return results, nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunkIDs)
}

// Dimension returns the store's vector dimension.
func (s *Store) Dimension() int {
	return s.dimension
}

// BackendType reports which backend serves this store ("faiss" or "matrix").
func (s *Store) BackendType() string {
	return s.backend.kind()
}

// Close releases backend resources.
func (s *Store) Close() error {
	return s.backend.close()
}

// Remove deletes the persisted index artifacts for chatbotID under dir. No
// Store for the chatbot may be open when it is called. Missing artifacts are
// not an error, so removing a chatbot that was never indexed is a no-op.
func Remove(dir, chatbotID string) error {
	if chatbotID == "" {
		return fmt.Errorf("chatbot id is required")
	}
	for _, name := range []string{chatbotID + ".faiss", chatbotID + ".json", chatbotID + ".bin"} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in path's directory and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
