package rag

import (
	"context"
	"log/slog"
)

// SearchEngine runs thresholded similarity retrieval over a knowledge
// store. Retrieval failures degrade to empty results so a flaky store
// never breaks the chat surface.
type SearchEngine struct {
	store  KnowledgeStore
	config *SearchConfig
	logger *slog.Logger
}

// SearchConfig holds retrieval parameters.
type SearchConfig struct {
	// TopK is how many candidates are fetched from the store.
	TopK int `json:"top_k"`
	// ScoreThreshold drops candidates whose similarity is below it.
	ScoreThreshold float64 `json:"score_threshold"`
}

// DefaultSearchConfig returns the retrieval defaults.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		TopK:           4,
		ScoreThreshold: 0.7,
	}
}

// NewSearchEngine creates a search engine over the store.
func NewSearchEngine(store KnowledgeStore, config *SearchConfig) *SearchEngine {
	if config == nil {
		config = DefaultSearchConfig()
	}
	return &SearchEngine{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "search-engine"),
	}
}

// SimilaritySearch returns the chunks relevant to the query: the top K
// nearest neighbors with scores at or above the threshold, in the store's
// nearest-first order. Store errors are logged and yield an empty result.
func (se *SearchEngine) SimilaritySearch(ctx context.Context, query string) []ScoredChunk {
	return se.query(ctx, query, se.config.TopK, nil)
}

// SearchByMetadata returns chunks matching the given metadata fields
// exactly. Store errors are logged and yield an empty result.
func (se *SearchEngine) SearchByMetadata(ctx context.Context, fields map[string]string, limit int) []Chunk {
	chunks, err := se.store.ByMetadata(ctx, fields, limit)
	if err != nil {
		se.logger.Error("Metadata search failed", "error", err, "fields", fields)
		return nil
	}
	return chunks
}

// HybridSearch runs the nearest-neighbor query restricted to chunks whose
// metadata fields equal all the given values, then applies the same score
// threshold as SimilaritySearch.
func (se *SearchEngine) HybridSearch(ctx context.Context, query string, fields map[string]string, limit int) []ScoredChunk {
	k := se.config.TopK
	if limit > 0 {
		k = limit
	}
	return se.query(ctx, query, k, fields)
}

func (se *SearchEngine) query(ctx context.Context, query string, k int, fields map[string]string) []ScoredChunk {
	candidates, err := se.store.QueryText(ctx, query, k, fields)
	if err != nil {
		se.logger.Error("Similarity search failed", "error", err)
		return nil
	}

	var relevant []ScoredChunk
	for _, c := range candidates {
		if c.Score >= se.config.ScoreThreshold {
			relevant = append(relevant, c)
		}
	}

	se.logger.Debug("Similarity search completed",
		"candidates", len(candidates),
		"relevant", len(relevant),
		"threshold", se.config.ScoreThreshold)
	return relevant
}
