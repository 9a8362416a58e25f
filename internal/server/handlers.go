package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/rag"
	"github.com/substratehq/docbot/internal/storage"
)

// maxUploadBytes caps the multipart memory buffer; larger files spill to disk.
const maxUploadBytes = 32 << 20

type createChatbotRequest struct {
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	TopK         int     `json:"top_k"`
}

func (s *Server) handleCreateChatbot(w http.ResponseWriter, r *http.Request) {
	var req createChatbotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		s.respondError(w, http.StatusBadRequest, "temperature must be between 0 and 2")
		return
	}
	bot := &models.Chatbot{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		TopK:         req.TopK,
	}
	if bot.TopK <= 0 {
		bot.TopK = s.config.Retrieval.TopK
	}
	if err := s.storage.CreateChatbot(r.Context(), bot); err != nil {
		s.logger.Error("create chatbot failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, bot)
}

func (s *Server) handleListChatbots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.storage.ListChatbots(r.Context())
	if err != nil {
		s.logger.Error("list chatbots failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"chatbots": bots})
}

func (s *Server) handleGetChatbot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bot, err := s.storage.GetChatbot(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "chatbot not found")
			return
		}
		s.logger.Error("get chatbot failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, bot)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatbotID := chi.URLParam(r, "id")
	if _, err := s.storage.GetChatbot(ctx, chatbotID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "chatbot not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(header.Filename)); byExt != "" {
			mimeType = byExt
		}
	}

	docID := uuid.New().String()
	storageKey := fmt.Sprintf("%s/%s%s", chatbotID, docID, filepath.Ext(header.Filename))

	hasher := sha256.New()
	err = s.blobs.Put(ctx, storageKey, io.TeeReader(file, hasher), header.Size, mimeType)
	if err != nil {
		s.logger.Error("store upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	doc := &models.Document{
		ID:         docID,
		ChatbotID:  chatbotID,
		FileName:   filepath.Base(header.Filename),
		MimeType:   mimeType,
		SizeBytes:  header.Size,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
		StorageKey: storageKey,
		Status:     models.StatusPending,
	}
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		s.logger.Error("create document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.dispatcher.Dispatch(chatbotID, docID)
	s.logger.Info("document accepted",
		zap.String("document_id", docID),
		zap.String("chatbot_id", chatbotID),
		zap.String("file_name", doc.FileName))
	s.respondJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	chatbotID := chi.URLParam(r, "id")
	docs, err := s.storage.ListDocumentsByChatbot(r.Context(), chatbotID)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("get document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

type chatRequest struct {
	Message string        `json:"message"`
	History []models.Turn `json:"history"`
	// TopK overrides the chatbot's retrieval depth for this request; 0 keeps
	// the chatbot default.
	TopK int `json:"top_k"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	chatbotID := chi.URLParam(r, "id")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.responder.Respond(r.Context(), chatbotID, req.Message, req.History, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrEmptyMessage):
			s.respondError(w, http.StatusBadRequest, "message must not be empty")
		case errors.Is(err, storage.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "chatbot not found")
		case errors.Is(err, rag.ErrGeneration):
			s.logger.Error("generation failed", zap.String("chatbot_id", chatbotID), zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("chat failed", zap.String("chatbot_id", chatbotID), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	if s.keywords == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword search not enabled")
		return
	}
	chatbotID := chi.URLParam(r, "id")
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	hits, err := s.keywords.Search(r.Context(), chatbotID, query, limit)
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"documents": docCount,
		"chunks":    chunkCount,
		"config": map[string]any{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_size":           s.config.Retrieval.ChunkSize,
			"chunk_overlap":        s.config.Retrieval.ChunkOverlap,
			"top_k":                s.config.Retrieval.TopK,
			"database_path":        s.config.Storage.DatabasePath,
			"vector_index_path":    s.config.Storage.VectorIndexPath,
			"keyword_index_path":   s.config.Storage.KeywordIndexPath,
		},
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.VectorIndexPath,
		s.config.Storage.KeywordIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
