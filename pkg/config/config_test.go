package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, 0.7, cfg.ScoreThreshold)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, "DocumentChunk", cfg.WeaviateClass)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("CHUNK_SIZE", "1500")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("SEARCH_TOP_K", "8")
	t.Setenv("SCORE_THRESHOLD", "0.55")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1/")
	t.Setenv("WEAVIATE_HOST", "weaviate:8080")
	t.Setenv("REBUILD_ON_START", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 1500, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 8, cfg.TopK)
	assert.Equal(t, 0.55, cfg.ScoreThreshold)
	assert.Equal(t, "http://localhost:11434/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "http://localhost:11434/v1/chat/completions", cfg.ChatCompletionsEndpoint())
	assert.Equal(t, "http://localhost:11434/v1/embeddings", cfg.EmbeddingsEndpoint())
	assert.Equal(t, "weaviate:8080", cfg.WeaviateHost)
	assert.True(t, cfg.RebuildOnStart)
}

func TestLoadFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.ChunkOverlap = cfg.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.ScoreThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.WeaviateScheme = "grpc"
	assert.Error(t, cfg.Validate())
}
