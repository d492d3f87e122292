// Package config centralizes environment-driven configuration for the
// assistant service and CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the assistant.
type Config struct {
	// HTTP surface
	ListenAddr      string
	ShutdownTimeout time.Duration

	// Document ingestion
	DocumentsPath string
	ChunkSize     int
	ChunkOverlap  int

	// Retrieval
	TopK           int
	ScoreThreshold float64

	// OpenAI-compatible provider
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	OpenAIBaseURL        string
	Temperature          float64
	MaxTokens            int
	RequestTimeout       time.Duration

	// Weaviate
	WeaviateHost   string
	WeaviateScheme string
	WeaviateAPIKey string
	WeaviateClass  string

	// Redis embedding cache, disabled when the address is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Knowledge base lifecycle
	RebuildOnStart bool
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		ShutdownTimeout: 30 * time.Second,

		DocumentsPath: "documents",
		ChunkSize:     2000,
		ChunkOverlap:  200,

		TopK:           4,
		ScoreThreshold: 0.7,

		OpenAIModel:          "gpt-4o-mini",
		OpenAIEmbeddingModel: "text-embedding-3-small",
		OpenAIBaseURL:        "https://api.openai.com/v1",
		Temperature:          0.7,
		MaxTokens:            1000,
		RequestTimeout:       60 * time.Second,

		WeaviateHost:   "localhost:8080",
		WeaviateScheme: "http",
		WeaviateClass:  "DocumentChunk",
	}
}

// LoadFromEnv reads a .env file when present and then overrides defaults
// with environment variables.
func LoadFromEnv() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if val := os.Getenv("LISTEN_ADDR"); val != "" {
		cfg.ListenAddr = val
	}
	if val := os.Getenv("SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.ShutdownTimeout = d
		}
	}

	if val := os.Getenv("DOCUMENTS_PATH"); val != "" {
		cfg.DocumentsPath = val
	}
	if val := os.Getenv("CHUNK_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}
	if val := os.Getenv("CHUNK_OVERLAP"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.ChunkOverlap = n
		}
	}

	if val := os.Getenv("SEARCH_TOP_K"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.TopK = n
		}
	}
	if val := os.Getenv("SCORE_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.ScoreThreshold = f
		}
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		cfg.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		cfg.OpenAIModel = val
	}
	if val := os.Getenv("OPENAI_EMBEDDING_MODEL"); val != "" {
		cfg.OpenAIEmbeddingModel = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.OpenAIBaseURL = strings.TrimRight(val, "/")
	}
	if val := os.Getenv("LLM_TEMPERATURE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	if val := os.Getenv("LLM_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.RequestTimeout = d
		}
	}

	if val := os.Getenv("WEAVIATE_HOST"); val != "" {
		cfg.WeaviateHost = val
	}
	if val := os.Getenv("WEAVIATE_SCHEME"); val != "" {
		cfg.WeaviateScheme = val
	}
	if val := os.Getenv("WEAVIATE_API_KEY"); val != "" {
		cfg.WeaviateAPIKey = val
	}
	if val := os.Getenv("WEAVIATE_CLASS"); val != "" {
		cfg.WeaviateClass = val
	}

	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.RedisAddr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.RedisPassword = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RedisDB = n
		}
	}

	if val := os.Getenv("REBUILD_ON_START"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.RebuildOnStart = b
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	var problems []string

	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		problems = append(problems, "CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		problems = append(problems, "SCORE_THRESHOLD must be between 0 and 1")
	}
	if c.WeaviateScheme != "http" && c.WeaviateScheme != "https" {
		problems = append(problems, "WEAVIATE_SCHEME must be http or https")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// EmbeddingsEndpoint returns the full embeddings URL for the configured
// provider base.
func (c *Config) EmbeddingsEndpoint() string {
	return c.OpenAIBaseURL + "/embeddings"
}

// ChatCompletionsEndpoint returns the full chat-completions URL for the
// configured provider base.
func (c *Config) ChatCompletionsEndpoint() string {
	return c.OpenAIBaseURL + "/chat/completions"
}
