package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/internal/types"
	cfgPkg "github.com/xhad/scribe/pkg/config"
	"github.com/xhad/scribe/pkg/docgen"
	"github.com/xhad/scribe/pkg/docstore"
	"github.com/xhad/scribe/pkg/ingest"
	"github.com/xhad/scribe/pkg/llm"
	"github.com/xhad/scribe/pkg/processor"
	"github.com/xhad/scribe/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is one client request. Data carries the type-specific
// payload.
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Reply is one server response.
type Reply struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WSServer exposes the documentation pipeline over WebSocket: document
// a file, import reference pages, search, stats, and export.
type WSServer struct {
	config      *cfgPkg.Config
	generator   *llm.Generator
	vectorStore *store.VectorStore
	docs        *docstore.DocStore
	ingester    *ingest.Ingester
	processor   processor.Processor

	// jobMu serializes document and ingest handlers: both work in the
	// vector store's current session, so interleaving them would let one
	// request's reset drop rows another request just indexed. imported
	// records whether reference pages live in the current session.
	jobMu    sync.Mutex
	imported bool
}

func NewWSServer(cfg *cfgPkg.Config) (*WSServer, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs[0])
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedder.Model,
		BaseURL: cfg.Embedder.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %v", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
		Persistent: cfg.Database.Persistent,
	}, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize context store: %v", err)
	}

	generator, err := llm.NewWithConfig(llm.GeneratorConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Workers:     cfg.LLM.Workers,
		RateLimit:   cfg.LLM.RateLimit,
	})
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialize generator: %v", err)
	}

	docs, err := docstore.New(cfg.Store.Path)
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to open documentation store: %v", err)
	}

	return &WSServer{
		config:      cfg,
		generator:   generator,
		vectorStore: vectorStore,
		docs:        docs,
		ingester: ingest.NewWithConfig(types.IngestConfig{
			MaxDepth:          cfg.Ingest.MaxDepth,
			RateLimit:         cfg.Ingest.RateLimit,
			IgnorePatterns:    cfg.Ingest.IgnorePatterns,
			AllowedExtensions: cfg.Ingest.AllowedExtensions,
		}),
		processor: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    cfg.Processor.ChunkSize,
			ChunkOverlap: cfg.Processor.ChunkOverlap,
		}),
	}, nil
}

// Close releases the server's backing stores.
func (s *WSServer) Close() {
	s.vectorStore.Close()
}

// wsConn serializes writes; handlers run in their own goroutines.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(reply Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(reply); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	wc := &wsConn{conn: conn}
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			wc.send(Reply{Type: "error", Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		go s.handleMessage(r.Context(), wc, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, wc *wsConn, msg Message) {
	switch msg.Type {
	case "document":
		s.handleDocument(ctx, wc, msg)
	case "ingest":
		s.handleIngest(ctx, wc, msg)
	case "search":
		s.handleSearch(wc, msg)
	case "stats":
		s.handleStats(ctx, wc)
	case "export":
		s.handleExport(wc, msg)
	case "clear":
		s.handleClear(wc)
	default:
		wc.send(Reply{Type: "error", Content: fmt.Sprintf("unknown message type: %s", msg.Type)})
	}
}

type documentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (s *WSServer) handleDocument(ctx context.Context, wc *wsConn, msg Message) {
	var req documentRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		wc.send(Reply{Type: "error", Content: fmt.Sprintf("invalid document request: %v", err)})
		return
	}
	if req.Filename == "" || req.Content == "" {
		wc.send(Reply{Type: "error", Content: "document request needs filename and content"})
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	pipeline := docgen.New(docgen.Config{
		PreserveContext: s.imported,
		OnProgress: func(p docgen.Progress) {
			wc.send(Reply{
				Type:    "progress",
				Content: string(p.Stage),
				Data: map[string]interface{}{
					"current": p.Current,
					"total":   p.Total,
					"detail":  p.Detail,
				},
			})
		},
	}, nil, s.vectorStore, s.generator, s.docs)

	result, err := pipeline.Document(ctx, filepath.Base(req.Filename), req.Content)
	if err != nil {
		wc.send(Reply{Type: "error", Content: fmt.Sprintf("failed to document %s: %v", req.Filename, err)})
		return
	}

	if len(result.Docs) == 0 {
		wc.send(Reply{Type: "documented", Content: "no functions found"})
		return
	}

	wc.send(Reply{Type: "documented", Content: result.Entry.Filename, Data: result.Entry})
}

func (s *WSServer) handleIngest(ctx context.Context, wc *wsConn, msg Message) {
	url := strings.TrimSpace(msg.Content)
	if url == "" {
		wc.send(Reply{Type: "error", Content: "ingest needs a URL"})
		return
	}
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}

	wc.send(Reply{Type: "status", Content: fmt.Sprintf("Importing %s", url)})

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	// Start the imported context in a clean session; documenting keeps
	// it from then on.
	if !s.imported {
		if err := s.vectorStore.Reset(ctx); err != nil {
			wc.send(Reply{Type: "error", Content: fmt.Sprintf("failed to reset context store: %v", err)})
			return
		}
	}

	pages, err := s.ingester.IngestInto(ctx, url, &s.processor, s.vectorStore)
	if err != nil {
		wc.send(Reply{Type: "error", Content: fmt.Sprintf("failed to import %s: %v", url, err)})
		return
	}
	s.imported = true

	wc.send(Reply{Type: "ingested", Content: fmt.Sprintf("Imported %d pages", pages)})
}

func (s *WSServer) handleSearch(wc *wsConn, msg Message) {
	results := s.docs.Search(msg.Content)
	wc.send(Reply{Type: "results", Content: msg.Content, Data: results})
}

func (s *WSServer) handleStats(ctx context.Context, wc *wsConn) {
	data := map[string]interface{}{
		"store": s.docs.Stats(),
	}
	if contextStats, err := s.vectorStore.Stats(ctx); err == nil {
		data["context"] = contextStats
	}
	wc.send(Reply{Type: "stats", Data: data})
}

func (s *WSServer) handleExport(wc *wsConn, msg Message) {
	all := allFunctions(s.docs.All().Files)

	switch strings.ToLower(msg.Content) {
	case "markdown", "md":
		wc.send(Reply{Type: "export", Content: docstore.Markdown(all)})
	case "json", "":
		out, err := docstore.JSON(all)
		if err != nil {
			wc.send(Reply{Type: "error", Content: fmt.Sprintf("export failed: %v", err)})
			return
		}
		wc.send(Reply{Type: "export", Content: out})
	default:
		wc.send(Reply{Type: "error", Content: fmt.Sprintf("unknown export format: %s", msg.Content)})
	}
}

func allFunctions(files []models.FileEntry) []models.FunctionDoc {
	var all []models.FunctionDoc
	for _, f := range files {
		all = append(all, f.Functions...)
	}
	return all
}

func (s *WSServer) handleClear(wc *wsConn) {
	if err := s.docs.Clear(); err != nil {
		wc.send(Reply{Type: "error", Content: fmt.Sprintf("failed to clear store: %v", err)})
		return
	}
	wc.send(Reply{Type: "cleared"})
}

// Run serves the WebSocket endpoint and a health check until the
// listener fails. The port comes from PORT, defaulting to 8080.
func (s *WSServer) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting WebSocket server on port %s", port)
	return http.ListenAndServe(":"+port, mux)
}
