package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "https://api.groq.com/openai/v1"
  model: "llama-3.3-70b-versatile"
  max_tokens: 1000
  temperature: 0.5
  workers: 8
  rate_limit: 2.0

embedder:
  base_url: "http://localhost:11434"
  model: "nomic-embed-text:latest"

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_context"
  vector_dim: 768
  batch_size: 50

ingest:
  max_depth: 5
  rate_limit: 1.5
  ignore_patterns:
    - "/test/"
  allowed_extensions:
    - ".html"
    - "/"

processor:
  chunk_size: 500
  chunk_overlap: 100

store:
  path: "docs.json"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "https://api.groq.com/openai/v1", config.LLM.BaseURL)
	assert.Equal(t, "llama-3.3-70b-versatile", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, 8, config.LLM.Workers)
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, 5, config.Ingest.MaxDepth)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, "docs.json", config.Store.Path)
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, "https://api.groq.com/openai/v1", config.LLM.BaseURL)
	assert.Equal(t, "llama-3.3-70b-versatile", config.LLM.Model)
	assert.Equal(t, 4, config.LLM.Workers)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedder.Model)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, "documentation.json", config.Store.Path)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		applyDefaults(c)
		c.LLM.APIKey = "gsk_test"
		return c
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "missing api key",
			mutate: func(c *Config) {
				c.LLM.APIKey = ""
			},
			expectedErrs:  1,
			errorMessages: []string{"llm.api_key: GROQ_API_KEY is required"},
		},
		{
			name: "invalid llm settings",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
				c.LLM.Workers = 0
			},
			expectedErrs: 3,
			errorMessages: []string{
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
				"llm.workers: workers must be positive",
			},
		},
		{
			name: "invalid processor overlap",
			mutate: func(c *Config) {
				c.Processor.ChunkSize = 100
				c.Processor.ChunkOverlap = 100
			},
			expectedErrs: 1,
			errorMessages: []string{
				"processor.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size",
			},
		},
		{
			name: "bad extension format",
			mutate: func(c *Config) {
				c.Ingest.AllowedExtensions = []string{"html"}
			},
			expectedErrs:  1,
			errorMessages: []string{"invalid extension format: html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)

			errors := config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			if tt.errorMessages != nil {
				for i, msg := range tt.errorMessages {
					assert.Contains(t, errors[i].Error(), msg)
				}
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("GROQ_API_KEY", "gsk_env")
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	os.Setenv("SCRIBE_STORE", "/tmp/env-docs.json")
	defer func() {
		os.Unsetenv("GROQ_API_KEY")
		os.Unsetenv("OLLAMA_BASE_URL")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("SCRIBE_STORE")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "gsk_env", config.LLM.APIKey)
	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "/tmp/env-docs.json", config.Store.Path)
}
