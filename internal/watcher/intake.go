package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/blobstore"
	"github.com/substratehq/docbot/internal/ingest"
	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/storage"
)

// Intake turns dropped files into uploaded documents and queues them for
// ingestion, mirroring what the HTTP upload endpoint does.
type Intake struct {
	store      storage.Storage
	blobs      blobstore.Store
	dispatcher *ingest.Dispatcher
	logger     *zap.Logger
}

// NewIntake wires storage, object store, and the ingestion dispatcher.
func NewIntake(store storage.Storage, blobs blobstore.Store, dispatcher *ingest.Dispatcher, logger *zap.Logger) *Intake {
	return &Intake{store: store, blobs: blobs, dispatcher: dispatcher, logger: logger}
}

// HandleDrop uploads one file for the chatbot and dispatches it. Suitable as
// the watcher's DropFunc.
func (n *Intake) HandleDrop(chatbotID, path string) {
	if err := n.ingestFile(context.Background(), chatbotID, path); err != nil {
		n.logger.Warn("drop folder ingestion failed",
			zap.String("chatbot_id", chatbotID),
			zap.String("path", path),
			zap.Error(err))
	}
}

func (n *Intake) ingestFile(ctx context.Context, chatbotID, path string) error {
	if _, err := n.store.GetChatbot(ctx, chatbotID); err != nil {
		return fmt.Errorf("load chatbot %s: %w", chatbotID, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dropped file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat dropped file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	docID := uuid.New().String()
	storageKey := fmt.Sprintf("%s/%s%s", chatbotID, docID, filepath.Ext(path))

	hasher := sha256.New()
	if err := n.blobs.Put(ctx, storageKey, io.TeeReader(f, hasher), info.Size(), mimeType); err != nil {
		return fmt.Errorf("store dropped file: %w", err)
	}

	doc := &models.Document{
		ID:         docID,
		ChatbotID:  chatbotID,
		FileName:   filepath.Base(path),
		MimeType:   mimeType,
		SizeBytes:  info.Size(),
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
		StorageKey: storageKey,
		Status:     models.StatusPending,
	}
	if err := n.store.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	n.dispatcher.Dispatch(chatbotID, docID)
	n.logger.Info("dropped file queued for ingestion",
		zap.String("document_id", docID),
		zap.String("chatbot_id", chatbotID),
		zap.String("file_name", doc.FileName))
	return nil
}
