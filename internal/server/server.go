// Package server provides the HTTP API for docbot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/blobstore"
	"github.com/substratehq/docbot/internal/config"
	"github.com/substratehq/docbot/internal/ingest"
	"github.com/substratehq/docbot/internal/keyword"
	"github.com/substratehq/docbot/internal/rag"
	"github.com/substratehq/docbot/internal/storage"
)

// Server is the HTTP server for the docbot API.
type Server struct {
	storage    storage.Storage
	blobs      blobstore.Store
	dispatcher *ingest.Dispatcher
	responder  *rag.Responder
	keywords   *keyword.Index
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. keywords may be
// nil, in which case keyword search responds 501.
func NewServer(
	store storage.Storage,
	blobs blobstore.Store,
	dispatcher *ingest.Dispatcher,
	responder *rag.Responder,
	keywords *keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		storage:    store,
		blobs:      blobs,
		dispatcher: dispatcher,
		responder:  responder,
		keywords:   keywords,
		config:     cfg,
		logger:     logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/chatbots", s.handleCreateChatbot)
	r.Get("/api/v1/chatbots", s.handleListChatbots)
	r.Get("/api/v1/chatbots/{id}", s.handleGetChatbot)
	r.Post("/api/v1/chatbots/{id}/documents", s.handleUploadDocument)
	r.Get("/api/v1/chatbots/{id}/documents", s.handleListDocuments)
	r.Post("/api/v1/chatbots/{id}/chat", s.handleChat)
	r.Get("/api/v1/chatbots/{id}/search", s.handleKeywordSearch)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
