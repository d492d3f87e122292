package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docent-ai/docent/pkg/config"
	"github.com/docent-ai/docent/pkg/handlers"
	"github.com/docent-ai/docent/pkg/llm"
	"github.com/docent-ai/docent/pkg/rag"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting assistant service",
		slog.String("addr", cfg.ListenAddr),
		slog.String("model", cfg.OpenAIModel),
		slog.String("embedding_model", cfg.OpenAIEmbeddingModel),
		slog.String("weaviate_host", cfg.WeaviateHost),
		slog.String("documents_path", cfg.DocumentsPath),
	)

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		logger.Error("Failed to initialize pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Attach to an existing index, or build one when attaching fails. A
	// failed build is not fatal: the service still serves health and
	// not-initialized chat responses.
	ctx := context.Background()
	if cfg.RebuildOnStart {
		if err := pipeline.BuildKnowledgeBase(ctx, true); err != nil {
			logger.Error("Knowledge base rebuild failed", slog.String("error", err.Error()))
		}
	} else if err := pipeline.LoadKnowledgeBase(ctx); err != nil {
		logger.Warn("Could not load existing knowledge base, building",
			slog.String("error", err.Error()))
		if err := pipeline.BuildKnowledgeBase(ctx, false); err != nil {
			logger.Error("Knowledge base build failed", slog.String("error", err.Error()))
		}
	}

	router := mux.NewRouter()
	handlers.NewHandler(pipeline).Register(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.Info("Server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// buildPipeline wires the assistant components from configuration.
func buildPipeline(cfg *config.Config) (*rag.Pipeline, error) {
	var cache rag.EmbeddingCache
	if cfg.RedisAddr != "" {
		redisCache, err := rag.NewRedisEmbeddingCache(&rag.RedisCacheConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
		})
		if err != nil {
			// The cache is an optimization only.
			slog.Warn("Redis cache unavailable, continuing without it",
				slog.String("error", err.Error()))
		} else {
			cache = redisCache
		}
	}

	embedder := rag.NewEmbeddingService(&rag.EmbeddingConfig{
		APIEndpoint:    cfg.EmbeddingsEndpoint(),
		APIKey:         cfg.OpenAIAPIKey,
		ModelName:      cfg.OpenAIEmbeddingModel,
		BatchSize:      64,
		RequestTimeout: cfg.RequestTimeout,
		RetryAttempts:  3,
		RetryDelay:     rag.DefaultEmbeddingConfig().RetryDelay,
	}, cache)

	store, err := rag.NewWeaviateStore(&rag.WeaviateStoreConfig{
		Host:      cfg.WeaviateHost,
		Scheme:    cfg.WeaviateScheme,
		APIKey:    cfg.WeaviateAPIKey,
		ClassName: cfg.WeaviateClass,
	}, embedder)
	if err != nil {
		return nil, err
	}

	generator, err := llm.NewClient(&llm.Config{
		APIEndpoint:    cfg.ChatCompletionsEndpoint(),
		APIKey:         cfg.OpenAIAPIKey,
		ModelName:      cfg.OpenAIModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: cfg.RequestTimeout,
		RetryAttempts:  2,
		RetryDelay:     llm.DefaultConfig().RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	loader := rag.NewDocumentLoader(&rag.DocumentLoaderConfig{
		DocumentsPath:    cfg.DocumentsPath,
		MinContentLength: 1,
	})
	chunker := rag.NewChunker(&rag.ChunkerConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Separators:   []string{"\n\n", "\n", " ", ""},
	})
	search := rag.NewSearchEngine(store, &rag.SearchConfig{
		TopK:           cfg.TopK,
		ScoreThreshold: cfg.ScoreThreshold,
	})

	return rag.NewPipeline(loader, chunker, store, search, generator), nil
}
