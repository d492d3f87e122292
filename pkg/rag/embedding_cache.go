package rag

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisEmbeddingCache stores embeddings in Redis keyed by model and a hash
// of the text. Cache failures are logged and treated as misses; callers
// never fail because the cache is down.
type RedisEmbeddingCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

// RedisCacheConfig holds configuration for the Redis embedding cache.
type RedisCacheConfig struct {
	Address   string        `json:"address"`
	Password  string        `json:"-"`
	Database  int           `json:"database"`
	KeyPrefix string        `json:"key_prefix"`
	TTL       time.Duration `json:"ttl"`
}

// DefaultRedisCacheConfig returns the cache defaults.
func DefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		Address:   "localhost:6379",
		KeyPrefix: "docent:",
		TTL:       24 * time.Hour,
	}
}

// NewRedisEmbeddingCache connects to Redis and verifies the connection.
func NewRedisEmbeddingCache(config *RedisCacheConfig) (*RedisEmbeddingCache, error) {
	if config == nil {
		config = DefaultRedisCacheConfig()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &RedisEmbeddingCache{
		client:    rdb,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    slog.Default().With("component", "embedding-cache"),
	}
	cache.logger.Info("Redis embedding cache initialized",
		"address", config.Address,
		"database", config.Database)
	return cache, nil
}

type embeddingCacheEntry struct {
	ModelName string    `json:"model_name"`
	Embedding []float32 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// Get returns the cached vector for the text, if present.
func (c *RedisEmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	key := c.buildKey(model, text)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Failed to get embedding from cache", "error", err)
		}
		return nil, false
	}

	var entry embeddingCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Error("Failed to unmarshal embedding cache entry", "error", err)
		return nil, false
	}
	return entry.Embedding, true
}

// Set stores the vector for the text. Failures are logged only.
func (c *RedisEmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) {
	entry := embeddingCacheEntry{
		ModelName: model,
		Embedding: vec,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("Failed to marshal embedding cache entry", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.buildKey(model, text), data, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to set embedding in cache", "error", err)
	}
}

// Close releases the Redis connection pool.
func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

func (c *RedisEmbeddingCache) buildKey(model, text string) string {
	textHash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%sembedding:%s:%x", c.keyPrefix, model, textHash)
}

// MemoryEmbeddingCache is an in-process cache for single-node deployments
// and tests. Safe for concurrent use.
type MemoryEmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryEmbeddingCache returns an empty in-memory cache.
func NewMemoryEmbeddingCache() *MemoryEmbeddingCache {
	return &MemoryEmbeddingCache{entries: make(map[string][]float32)}
}

func (c *MemoryEmbeddingCache) Get(_ context.Context, model, text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.entries[model+"\x00"+text]
	return vec, ok
}

func (c *MemoryEmbeddingCache) Set(_ context.Context, model, text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[model+"\x00"+text] = vec
}
