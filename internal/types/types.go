package types

import (
	"context"
	"time"

	"github.com/xhad/scribe/internal/models"
)

// Core interfaces
type Parser interface {
	ParseFile(path string) ([]models.Function, error)
	Parse(content string) []models.Function
}

type ContextStore interface {
	Add(ctx context.Context, texts []string) (int, error)
	Query(ctx context.Context, embedding []float32, limit int) ([]models.Document, error)
	Reset(ctx context.Context) error
	Close()
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	FlattenEmbeddings(embeddings [][]float32) []float32
}

type Generator interface {
	Generate(ctx context.Context, fn models.Function, contextDocs []string) models.Documentation
	GenerateBatch(ctx context.Context, fns []models.Function, contexts [][]string) []models.Documentation
}

type Processor interface {
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}

type DocStore interface {
	Add(filename, content string, sizeBytes int, docs []models.FunctionDoc) (models.FileEntry, error)
	Get(filename string) (models.FileEntry, bool)
	Search(query string) []models.SearchResult
	Clear() error
}

type ProcessorConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	MinChunkLength     int
	PreserveLineBreaks bool
}

type IngestConfig struct {
	MaxDepth          int
	RateLimit         float64
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}
