// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/substratehq/docbot/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chatbots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		system_prompt TEXT NOT NULL DEFAULT '',
		temperature REAL NOT NULL DEFAULT 0.7,
		top_k INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		chatbot_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		storage_key TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (chatbot_id) REFERENCES chatbots(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_chatbot_id ON documents(chatbot_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chatbot_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_chatbot_id ON chunks(chatbot_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		chunk_id TEXT NOT NULL UNIQUE,
		dimension INTEGER NOT NULL,
		model TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateChatbot inserts a chatbot.
func (s *SQLiteStorage) CreateChatbot(ctx context.Context, bot *models.Chatbot) error {
	now := time.Now()
	bot.CreatedAt = now
	bot.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chatbots (id, name, system_prompt, temperature, top_k, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bot.ID, bot.Name, bot.SystemPrompt, bot.Temperature, bot.TopK, bot.CreatedAt, bot.UpdatedAt,
	)
	return err
}

// GetChatbot returns a chatbot by ID.
func (s *SQLiteStorage) GetChatbot(ctx context.Context, id string) (*models.Chatbot, error) {
	var bot models.Chatbot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, system_prompt, temperature, top_k, created_at, updated_at
		 FROM chatbots WHERE id = ?`, id,
	).Scan(&bot.ID, &bot.Name, &bot.SystemPrompt, &bot.Temperature, &bot.TopK, &bot.CreatedAt, &bot.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chatbot %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

// ListChatbots returns all chatbots ordered by creation time.
func (s *SQLiteStorage) ListChatbots(ctx context.Context) ([]*models.Chatbot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, system_prompt, temperature, top_k, created_at, updated_at
		 FROM chatbots ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*models.Chatbot
	for rows.Next() {
		var bot models.Chatbot
		if err := rows.Scan(&bot.ID, &bot.Name, &bot.SystemPrompt, &bot.Temperature, &bot.TopK, &bot.CreatedAt, &bot.UpdatedAt); err != nil {
			return nil, err
		}
		bots = append(bots, &bot)
	}
	return bots, rows.Err()
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, chatbot_id, file_name, mime_type, size_bytes, checksum, storage_key, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ChatbotID, doc.FileName, doc.MimeType, doc.SizeBytes, doc.Checksum,
		doc.StorageKey, doc.Status, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chatbot_id, file_name, mime_type, size_bytes, checksum, storage_key, status, error, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.ChatbotID, &doc.FileName, &doc.MimeType, &doc.SizeBytes, &doc.Checksum,
		&doc.StorageKey, &doc.Status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// SetDocumentStatus updates a document's status and error message.
func (s *SQLiteStorage) SetDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// ListDocumentsByChatbot returns a chatbot's documents, newest first.
func (s *SQLiteStorage) ListDocumentsByChatbot(ctx context.Context, chatbotID string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chatbot_id, file_name, mime_type, size_bytes, checksum, storage_key, status, error, created_at, updated_at
		 FROM documents WHERE chatbot_id = ? ORDER BY created_at DESC`, chatbotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.ChatbotID, &doc.FileName, &doc.MimeType, &doc.SizeBytes, &doc.Checksum,
			&doc.StorageKey, &doc.Status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// BatchCreateChunks inserts chunks and their paired embedding rows in one transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.Chunk, embeddings []*models.Embedding) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks and embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, chatbot_id, chunk_index, content, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	embStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (id, chunk_id, dimension, model, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer embStmt.Close()

	now := time.Now()
	for i, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := chunkStmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.ChatbotID, chunk.ChunkIndex, chunk.Content, chunk.TokenCount, chunk.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
		emb := embeddings[i]
		emb.CreatedAt = now
		if _, err := embStmt.ExecContext(ctx,
			emb.ID, emb.ChunkID, emb.Dimension, emb.Model, encodeVector(emb.Vector), emb.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert embedding %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chatbot_id, chunk_index, content, token_count, created_at
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChatbotID, &chunk.ChunkIndex,
			&chunk.Content, &chunk.TokenCount, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// GetChunksByIDs returns chunks with document names for the given id set,
// scoped to chatbotID.
func (s *SQLiteStorage) GetChunksByIDs(ctx context.Context, chatbotID string, ids []string) ([]*ChunkWithDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, chatbotID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chatbot_id, c.chunk_index, c.content, c.token_count, c.created_at, d.file_name
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE c.chatbot_id = ? AND c.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChunkWithDocument
	for rows.Next() {
		var cw ChunkWithDocument
		if err := rows.Scan(&cw.Chunk.ID, &cw.Chunk.DocumentID, &cw.Chunk.ChatbotID, &cw.Chunk.ChunkIndex,
			&cw.Chunk.Content, &cw.Chunk.TokenCount, &cw.Chunk.CreatedAt, &cw.DocumentName); err != nil {
			return nil, err
		}
		out = append(out, &cw)
	}
	return out, rows.Err()
}

// ListEmbeddingsByChatbot returns all embedding rows for a chatbot's chunks
// in ingestion order.
func (s *SQLiteStorage) ListEmbeddingsByChatbot(ctx context.Context, chatbotID string) ([]*models.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.chunk_id, e.dimension, e.model, e.vector, e.created_at
		 FROM embeddings e
		 JOIN chunks c ON c.id = e.chunk_id
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.chatbot_id = ?
		 ORDER BY d.created_at, c.chunk_index`, chatbotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Embedding
	for rows.Next() {
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(&emb.ID, &emb.ChunkID, &emb.Dimension, &emb.Model, &blob, &emb.CreatedAt); err != nil {
			return nil, err
		}
		emb.Vector = decodeVector(blob)
		out = append(out, &emb)
	}
	return out, rows.Err()
}

// CountDocuments returns the number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// encodeVector serializes a float32 vector as little-endian bytes for the BLOB column.
func encodeVector(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

// decodeVector is the inverse of encodeVector.
func decodeVector(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return out
}
