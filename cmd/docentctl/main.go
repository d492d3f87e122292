// docentctl manages the knowledge base and exercises the assistant from
// the command line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/docent-ai/docent/pkg/config"
	"github.com/docent-ai/docent/pkg/llm"
	"github.com/docent-ai/docent/pkg/rag"
)

func main() {
	var (
		build       = flag.Bool("build", false, "build the knowledge base from the documents directory")
		rebuild     = flag.Bool("rebuild", false, "drop and rebuild the knowledge base")
		update      = flag.Bool("update", false, "append the documents directory to the existing knowledge base")
		info        = flag.Bool("info", false, "print knowledge base information")
		chat        = flag.String("chat", "", "ask a single question")
		question    = flag.String("question", "", "generate a multiple-choice question for the topic")
		quiz        = flag.String("quiz", "", "generate a quiz for the comma-separated topics")
		interactive = flag.Bool("interactive", false, "start an interactive chat session")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	pipeline, err := wirePipeline(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch {
	case *build:
		run(pipeline.BuildKnowledgeBase(ctx, false))
		fmt.Println("Knowledge base built.")
	case *rebuild:
		run(pipeline.BuildKnowledgeBase(ctx, true))
		fmt.Println("Knowledge base rebuilt.")
	case *update:
		run(pipeline.LoadKnowledgeBase(ctx))
		run(pipeline.UpdateKnowledgeBase(ctx))
		fmt.Println("Knowledge base updated.")
	case *info:
		run(pipeline.LoadKnowledgeBase(ctx))
		kb, err := pipeline.Info(ctx)
		run(err)
		fmt.Printf("Class:           %s\n", kb.ClassName)
		fmt.Printf("Chunks:          %d\n", kb.ChunkCount)
		fmt.Printf("Embedding model: %s\n", kb.EmbeddingModel)
	case *chat != "":
		run(pipeline.LoadKnowledgeBase(ctx))
		printChat(pipeline.Chat(ctx, *chat))
	case *question != "":
		run(pipeline.LoadKnowledgeBase(ctx))
		q, err := pipeline.GenerateMultipleChoiceQuestion(ctx, *question)
		run(err)
		printQuestion(q)
	case *quiz != "":
		run(pipeline.LoadKnowledgeBase(ctx))
		topics := splitTopics(*quiz)
		set := pipeline.GenerateQuizSet(ctx, topics)
		fmt.Printf("Generated %d/%d questions.\n\n", set.SuccessfulQuestions, set.TotalQuestions)
		for i, q := range set.Questions {
			fmt.Printf("=== Question %d ===\n", i+1)
			printQuestion(q)
			fmt.Println()
		}
	case *interactive:
		run(pipeline.LoadKnowledgeBase(ctx))
		runInteractive(ctx, pipeline)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func run(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func splitTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func printChat(result rag.ChatResult) {
	fmt.Println(result.Answer)
	fmt.Printf("\nConfidence: %s (avg score %.3f, %d documents)\n",
		result.Confidence, result.AvgScore, result.DocumentsUsed)
	if len(result.Sources) > 0 {
		fmt.Println("Sources:")
		for i, s := range result.Sources {
			fmt.Printf("  %d. %s (score %.3f)\n", i+1, s.FileName, s.Score)
		}
	}
	if len(result.RelatedPaths) > 0 {
		fmt.Println("Related learning paths:")
		for _, p := range result.RelatedPaths {
			fmt.Printf("  - %s\n", p)
		}
	}
}

func printQuestion(q rag.QuestionResult) {
	fmt.Println(q.Question)
	for _, letter := range []string{"A", "B", "C", "D", "E"} {
		fmt.Printf("  %s) %s\n", letter, q.Options[letter])
	}
	fmt.Printf("Answer: %s\n", q.Answer)
	if q.Explanation != "" {
		fmt.Printf("Explanation: %s\n", q.Explanation)
	}
	fmt.Printf("Confidence: %s\n", q.Confidence)
}

func runInteractive(ctx context.Context, pipeline *rag.Pipeline) {
	fmt.Println("Interactive chat. Type 'sair' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "sair") || strings.EqualFold(line, "exit") {
			return
		}
		printChat(pipeline.Chat(ctx, line))
	}
}

// wirePipeline assembles the assistant the same way the server does.
func wirePipeline(cfg *config.Config) (*rag.Pipeline, error) {
	var cache rag.EmbeddingCache
	if cfg.RedisAddr != "" {
		if redisCache, err := rag.NewRedisEmbeddingCache(&rag.RedisCacheConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
		}); err == nil {
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
