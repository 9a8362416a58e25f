// Package main is the docbot CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/substratehq/docbot/internal/blobstore"
	"github.com/substratehq/docbot/internal/chunker"
	"github.com/substratehq/docbot/internal/config"
	"github.com/substratehq/docbot/internal/embedding"
	"github.com/substratehq/docbot/internal/ingest"
	"github.com/substratehq/docbot/internal/keyword"
	"github.com/substratehq/docbot/internal/models"
	"github.com/substratehq/docbot/internal/provider"
	"github.com/substratehq/docbot/internal/rag"
	"github.com/substratehq/docbot/internal/server"
	"github.com/substratehq/docbot/internal/storage"
	"github.com/substratehq/docbot/internal/vector"
	"github.com/substratehq/docbot/internal/watcher"
	"github.com/substratehq/docbot/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docbot/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "chatbot":
		runChatbot()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("docbot version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch) > 0 {
		intake := watcher.NewIntake(components.Storage, components.Blobs, components.Dispatcher, logger)
		folders := make([]watcher.Folder, 0, len(cfg.Watch))
		for _, wf := range cfg.Watch {
			folders = append(folders, watcher.Folder{
				ChatbotID:  wf.ChatbotID,
				Directory:  wf.Directory,
				Extensions: wf.Extensions,
			})
		}
		watchSvc = watcher.NewWatcher(folders, intake.HandleDrop, logger)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		// Files dropped while the server was down never produce an fsnotify
		// event; pick them up now.
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Storage,
		components.Blobs,
		components.Dispatcher,
		components.Responder,
		components.Keywords,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	components.Dispatcher.Wait()
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	chatbotID := fs.String("chatbot", "", "chatbot ID to ingest into")
	_ = fs.Parse(os.Args[2:])

	if *chatbotID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: docbot ingest --chatbot <id> <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	intake := watcher.NewIntake(components.Storage, components.Blobs, components.Dispatcher, logger)
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var queued int
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			fmt.Printf("Failed to read directory: %v\n", err)
			os.Exit(1)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			intake.HandleDrop(*chatbotID, filepath.Join(path, entry.Name()))
			queued++
		}
	} else {
		intake.HandleDrop(*chatbotID, path)
		queued = 1
	}
	components.Dispatcher.Wait()

	docs, err := components.Storage.ListDocumentsByChatbot(context.Background(), *chatbotID)
	if err != nil {
		fmt.Printf("Failed to list documents: %v\n", err)
		os.Exit(1)
	}
	var ready, failed int
	for _, doc := range docs {
		switch doc.Status {
		case models.StatusReady:
			ready++
		case models.StatusFailed:
			failed++
			fmt.Printf("failed: %s: %s\n", doc.FileName, doc.Error)
		}
	}
	fmt.Printf("Queued %d file(s); chatbot now has %d ready and %d failed document(s)\n", queued, ready, failed)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	chatbotID := fs.String("chatbot", "", "chatbot ID to ask")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	topK := fs.Int("top-k", 0, "retrieved chunks for this question, 0 = chatbot default")
	_ = fs.Parse(os.Args[2:])

	if *chatbotID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: docbot ask --chatbot <id> <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var answer rag.Answer
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]any{"message": question, "top_k": *topK})
		resp, err := http.Post(
			*serverURL+"/api/v1/chatbots/"+url.PathEscape(*chatbotID)+"/chat",
			"application/json", bytes.NewReader(body),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Ask failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		res, err := components.Responder.Respond(context.Background(), *chatbotID, question, nil, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		answer = *res
	}

	fmt.Println(answer.Reply)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range answer.Sources {
			fmt.Printf("  [%d] %s (score: %.3f)\n", i+1, src.DocumentName, src.Score)
		}
	}
}

func runChatbot() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: docbot chatbot <create|list> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("chatbot", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	name := fs.String("name", "", "chatbot name (create)")
	systemPrompt := fs.String("system-prompt", "", "system prompt (create)")
	temperature := fs.Float64("temperature", 0.7, "generation temperature (create)")
	topK := fs.Int("top-k", 0, "retrieved chunks per question, 0 = server default (create)")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "create":
		if *name == "" {
			fmt.Println("Usage: docbot chatbot create --name <name> [--system-prompt ...] [--temperature ...] [--top-k ...]")
			os.Exit(1)
		}
		body, _ := json.Marshal(map[string]any{
			"name":          *name,
			"system_prompt": *systemPrompt,
			"temperature":   *temperature,
			"top_k":         *topK,
		})
		resp, err := http.Post(*serverURL+"/api/v1/chatbots", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Create failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var bot models.Chatbot
		if err := json.NewDecoder(resp.Body).Decode(&bot); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created chatbot %s (%s)\n", bot.Name, bot.ID)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/chatbots")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Chatbots []models.Chatbot `json:"chatbots"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
		for _, bot := range out.Chatbots {
			fmt.Printf("%s  %s\n", bot.ID, bot.Name)
		}
	default:
		fmt.Printf("Unknown chatbot subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// runReindex rebuilds a chatbot's vector index from the embeddings stored in
// the database, for recovery after index corruption or a backend change.
func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	chatbotID := fs.String("chatbot", "", "chatbot ID to reindex")
	_ = fs.Parse(os.Args[2:])

	if *chatbotID == "" {
		fmt.Println("Usage: docbot reindex --chatbot <id>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.GetChatbot(ctx, *chatbotID); err != nil {
		fmt.Printf("Chatbot lookup failed: %v\n", err)
		os.Exit(1)
	}
	embs, err := store.ListEmbeddingsByChatbot(ctx, *chatbotID)
	if err != nil {
		fmt.Printf("Failed to load embeddings: %v\n", err)
		os.Exit(1)
	}
	if err := vector.Remove(cfg.Storage.VectorIndexPath, *chatbotID); err != nil {
		fmt.Printf("Failed to remove old index: %v\n", err)
		os.Exit(1)
	}
	if len(embs) == 0 {
		fmt.Println("No embeddings stored; index removed")
		return
	}

	index, err := vector.Open(cfg.Storage.VectorIndexPath, *chatbotID, embs[0].Dimension)
	if err != nil {
		fmt.Printf("Failed to open index: %v\n", err)
		os.Exit(1)
	}
	defer index.Close()

	chunkIDs := make([]string, len(embs))
	vectors := make([][]float32, len(embs))
	for i, emb := range embs {
		chunkIDs[i] = emb.ChunkID
		vectors[i] = emb.Vector
	}
	if err := index.Add(ctx, chunkIDs, vectors); err != nil {
		fmt.Printf("Failed to rebuild index: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuilt index for chatbot %s with %d vector(s) (%s backend)\n",
		*chatbotID, index.Len(), index.BackendType())
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var status struct {
		Documents      int64          `json:"documents"`
		Chunks         int64          `json:"chunks"`
		DiskUsageBytes *int64         `json:"disk_usage_bytes,omitempty"`
		Config         map[string]any `json:"config,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:         %d\n", status.Documents)
		fmt.Printf("chunks:            %d\n", status.Chunks)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:  %d\n", *status.DiskUsageBytes)
		}
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{
				"embedding_provider", "embedding_dimensions", "chunk_size",
				"chunk_overlap", "top_k", "database_path", "vector_index_path",
				"keyword_index_path",
			} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-21s%v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage    storage.Storage
	Blobs      blobstore.Store
	Embedder   embedding.Embedder
	Keywords   *keyword.Index
	Dispatcher *ingest.Dispatcher
	Responder  *rag.Responder
}

func (c *Components) Close() {
	if c.Dispatcher != nil {
		c.Dispatcher.Wait()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	blobs, err := blobstore.New(&cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	keywords, err := keyword.NewIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	pipeline := ingest.NewPipeline(
		store, blobs, embedder, keywords,
		chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		cfg.Storage.VectorIndexPath, logger,
	)
	dispatcher := ingest.NewDispatcher(pipeline, logger)

	var prov provider.Provider
	if cfg.Generation.BaseURL != "" {
		prov, err = provider.NewOpenAIProvider(&cfg.Generation)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize generation provider: %w", err)
		}
	} else {
		logger.Warn("no generation backend configured; chat replies will be a placeholder")
		prov = &provider.StaticProvider{
			Reply: "No generation backend is configured. Set generation.base_url in the config.",
		}
	}

	responder := rag.NewResponder(
		store, embedder, prov,
		cfg.Storage.VectorIndexPath,
		cfg.Retrieval.TopK,
		cfg.Generation.MaxOutputTokens,
		logger,
	)

	return &Components{
		Storage:    store,
		Blobs:      blobs,
		Embedder:   embedder,
		Keywords:   keywords,
		Dispatcher: dispatcher,
		Responder:  responder,
	}, nil
}

func printUsage() {
	fmt.Println(`docbot - Retrieval-augmented chatbot backend

Usage:
  docbot server [flags]                      Start the HTTP server
  docbot chatbot create --name <name>        Create a chatbot (via server)
  docbot chatbot list                        List chatbots (via server)
  docbot ingest --chatbot <id> <path>        Ingest a file or directory
  docbot ask --chatbot <id> <question>       Ask a chatbot a question
  docbot reindex --chatbot <id>              Rebuild a chatbot's vector index
  docbot status [flags]                      Show storage and config status
  docbot version                             Show version
  docbot help                                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/docbot/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --chatbot string   Chatbot ID (required)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --config string    Config file path (direct storage mode)

Examples:
  docbot server
  docbot chatbot create --name support --system-prompt "Answer briefly."
  docbot ingest --chatbot 4f7c... ./docs
  docbot ask --chatbot 4f7c... "how do refunds work?"
  docbot status --output json`)
}
