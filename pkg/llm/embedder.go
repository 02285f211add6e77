package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig configures the local embedding model.
type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Embedder produces embeddings through a local Ollama model and caches
// them by content hash so repeated texts are only embedded once.
type Embedder struct {
	config EmbedderConfig
	client *ollama.LLM

	mu    sync.Mutex
	cache map[string][]float32
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		client: client,
		cache:  make(map[string][]float32),
	}, nil
}

func NewEmbedder() (*Embedder, error) {
	return NewEmbedderWithConfig(EmbedderConfig{})
}

// CreateEmbedding embeds the given texts, serving cache hits locally
// and batching the misses into a single model call. Results keep the
// input order.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int

	e.mu.Lock()
	for i, text := range texts {
		if emb, ok := e.cache[hashText(text)]; ok {
			results[i] = emb
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	e.mu.Unlock()

	if len(missing) == 0 {
		return results, nil
	}

	embedded, err := e.client.CreateEmbedding(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(embedded) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(missing))
	}

	e.mu.Lock()
	for j, idx := range missingIdx {
		results[idx] = embedded[j]
		e.cache[hashText(missing[j])] = embedded[j]
	}
	e.mu.Unlock()

	return results, nil
}

// EmbedQuery embeds a single text and returns the flat vector.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return e.FlattenEmbeddings(embeddings), nil
}

func (e *Embedder) FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flattened []float32
	for _, emb := range embeddings {
		flattened = append(flattened, emb...)
	}
	return flattened
}

// CacheSize reports how many distinct texts have cached embeddings.
func (e *Embedder) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

func hashText(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
