package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/scribe/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   "nomic-embed-text:latest",
		BaseURL: "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.NotNil(t, emb)
	assert.Equal(t, 0, emb.CacheSize())
}

func TestNewEmbedderDefaults(t *testing.T) {
	emb, err := llm.NewEmbedder()
	require.NoError(t, err)
	assert.NotNil(t, emb)
}

func TestFlattenEmbeddings(t *testing.T) {
	emb, err := llm.NewEmbedder()
	require.NoError(t, err)

	flattened := emb.FlattenEmbeddings([][]float32{
		{0.1, 0.2},
		{0.3, 0.4},
	})

	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, flattened)
	assert.Nil(t, emb.FlattenEmbeddings(nil))
}
