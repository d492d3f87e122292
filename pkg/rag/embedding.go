package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// EmbeddingService generates vectors through an OpenAI-compatible
// embeddings endpoint, batching inputs and memoizing results in an
// optional cache keyed by (model, text).
type EmbeddingService struct {
	config     *EmbeddingConfig
	cache      EmbeddingCache
	httpClient *http.Client
	logger     *slog.Logger
}

// EmbeddingConfig holds configuration for the embedding service.
type EmbeddingConfig struct {
	APIEndpoint    string        `json:"api_endpoint"`
	APIKey         string        `json:"-"`
	ModelName      string        `json:"model_name"`
	BatchSize      int           `json:"batch_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RetryAttempts  int           `json:"retry_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
}

// DefaultEmbeddingConfig returns the embedding defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		APIEndpoint:    "https://api.openai.com/v1/embeddings",
		ModelName:      "text-embedding-3-small",
		BatchSize:      64,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     time.Second,
	}
}

// NewEmbeddingService creates an embedding service. cache may be nil.
func NewEmbeddingService(config *EmbeddingConfig, cache EmbeddingCache) *EmbeddingService {
	if config == nil {
		config = DefaultEmbeddingConfig()
	}
	return &EmbeddingService{
		config: config,
		cache:  cache,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: slog.Default().With("component", "embedding-service"),
	}
}

// ModelName returns the configured embedding model identifier.
func (es *EmbeddingService) ModelName() string {
	return es.config.ModelName
}

// EmbedQuery embeds a single text.
func (es *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := es.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds every input and returns the vectors in input order.
// Cached texts are not re-sent; the remainder goes to the API in batches
// of at most BatchSize.
func (es *EmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if es.cache != nil {
			if vec, ok := es.cache.Get(ctx, es.config.ModelName, text); ok {
				vectors[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}

	batchSize := es.config.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	for start := 0; start < len(missing); start += batchSize {
		end := start + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		inputs := make([]string, len(batch))
		for j, idx := range batch {
			inputs[j] = texts[idx]
		}

		embedded, err := es.callEmbeddingAPI(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(embedded) != len(inputs) {
			return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(embedded), len(inputs))
		}

		for j, idx := range batch {
			vectors[idx] = embedded[j]
			if es.cache != nil {
				es.cache.Set(ctx, es.config.ModelName, texts[idx], embedded[j])
			}
		}
	}
	return vectors, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// callEmbeddingAPI posts one batch, retrying transient failures with a
// linearly growing delay.
func (es *EmbeddingService) callEmbeddingAPI(ctx context.Context, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(embeddingRequest{
		Input: texts,
		Model: es.config.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= es.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			es.logger.Warn("Embedding request failed, retrying",
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(es.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, es.config.APIEndpoint, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+es.config.APIKey)

		resp, err := es.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("embedding API returned status %d", resp.StatusCode)
			// Client errors other than rate limiting will not improve
			// with retries.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
			continue
		}

		var apiResp embeddingResponse
		err = json.NewDecoder(resp.Body).Decode(&apiResp)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode response: %w", err)
			continue
		}

		vectors := make([][]float32, len(texts))
		for _, d := range apiResp.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		for i, v := range vectors {
			if v == nil {
				return nil, fmt.Errorf("embedding API returned no vector for input %d", i)
			}
		}
		return vectors, nil
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", es.config.RetryAttempts+1, lastErr)
}
