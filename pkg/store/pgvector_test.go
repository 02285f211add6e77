package store_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/pkg/store"
)

// fakeEmbedder avoids a live Ollama server: deterministic vectors so
// identical texts land on identical embeddings.
type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 8)
		for j, r := range text {
			vec[j%8] += float32(r) / 1000
		}
		out[i] = vec
	}
	return out, nil
}

func (fakeEmbedder) FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flattened []float32
	for _, emb := range embeddings {
		flattened = append(flattened, emb...)
	}
	return flattened
}

func getTestStore(t *testing.T) *store.VectorStore {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: connString,
		TableName:  "test_context_docs",
		VectorDim:  8,
	}, fakeEmbedder{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func TestVectorStoreAddAndQuery(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	count, err := s.Add(ctx, []string{
		"Add two numbers and return the sum.",
		"Fetch JSON from a URL with a timeout.",
		"   ", // skipped
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	docs, err := s.QueryText(ctx, "Add two numbers and return the sum.", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Add two numbers and return the sum.", docs[0].Content)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, "session", stats.StorageType)
}

func TestVectorStoreSessionIsolation(t *testing.T) {
	s := getTestStore(t)
	other := getTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []string{"Session one context."})
	require.NoError(t, err)

	// The other session sees none of it.
	docs, err := other.QueryText(ctx, "Session one context.", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestVectorStoreReset(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []string{"Some context to drop."})
	require.NoError(t, err)

	before := s.SessionID()
	require.NoError(t, s.Reset(ctx))
	assert.NotEqual(t, before, s.SessionID())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocumentCount)
}

func TestVectorStoreStoreProcessedDocs(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	docs := []models.ProcessedDocument{
		{
			Document: models.Document{
				Source: "https://example.com/docs",
				Title:  "Reference",
				Metadata: map[string]interface{}{
					"kind": "page",
				},
			},
			Chunks: []string{"First chunk of reference text.", "Second chunk of reference text."},
		},
	}

	require.NoError(t, s.Store(ctx, docs))

	results, err := s.QueryText(ctx, "First chunk of reference text.", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://example.com/docs", results[0].Source)
	assert.Equal(t, "Reference", results[0].Title)
}

func TestVectorStoreConcurrentResetAndAdd(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	// Session rotation races against indexing and retrieval when the
	// server handles messages concurrently; under -race this must stay
	// clean.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				switch i % 3 {
				case 0:
					_ = s.Reset(ctx)
				case 1:
					_, _ = s.Add(ctx, []string{fmt.Sprintf("context %d-%d", i, j)})
				default:
					_, _ = s.QueryText(ctx, "context", 2)
					_ = s.SessionID()
				}
			}
		}(i)
	}
	wg.Wait()

	_, err := s.Stats(ctx)
	assert.NoError(t, err)
}

func TestVectorStoreRequiresEmbedder(t *testing.T) {
	_, err := store.NewWithConfig(store.VectorStoreConfig{}, nil)
	assert.Error(t, err)
}
