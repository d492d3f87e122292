package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// modelDescriptionPrefix marks the embedding model the index was built
// with, stored in the Weaviate class description.
const modelDescriptionPrefix = "embedding_model="

// WeaviateStore implements KnowledgeStore on a Weaviate class. Vectors are
// produced client-side through the EmbeddingProvider, so the class uses no
// server-side vectorizer and queries run as nearVector searches over
// cosine distance.
type WeaviateStore struct {
	client   *weaviate.Client
	config   *WeaviateStoreConfig
	embedder EmbeddingProvider
	logger   *slog.Logger

	mu     sync.RWMutex
	loaded bool
}

// WeaviateStoreConfig holds configuration for the Weaviate store.
type WeaviateStoreConfig struct {
	Host      string        `json:"host"`
	Scheme    string        `json:"scheme"`
	APIKey    string        `json:"-"`
	ClassName string        `json:"class_name"`
	Timeout   time.Duration `json:"timeout"`
	BatchSize int           `json:"batch_size"`
}

// DefaultWeaviateStoreConfig returns the store defaults.
func DefaultWeaviateStoreConfig() *WeaviateStoreConfig {
	return &WeaviateStoreConfig{
		Host:      "localhost:8080",
		Scheme:    "http",
		ClassName: "DocumentChunk",
		Timeout:   30 * time.Second,
		BatchSize: 100,
	}
}

// NewWeaviateStore creates a store client. It does not touch the schema;
// call Build or Load before querying.
func NewWeaviateStore(config *WeaviateStoreConfig, embedder EmbeddingProvider) (*WeaviateStore, error) {
	if config == nil {
		config = DefaultWeaviateStoreConfig()
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding provider cannot be nil")
	}

	var authConfig auth.Config
	if config.APIKey != "" {
		authConfig = auth.ApiKey{Value: config.APIKey}
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:       config.Host,
		Scheme:     config.Scheme,
		AuthConfig: authConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client:   client,
		config:   config,
		embedder: embedder,
		logger:   slog.Default().With("component", "vector-store"),
	}, nil
}

// Ready reports whether the Weaviate cluster accepts requests.
func (ws *WeaviateStore) Ready(ctx context.Context) bool {
	ready, err := ws.client.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}

// Build creates the class and inserts all chunks. With force set an
// existing class is dropped first; without it Build fails with
// ErrIndexExists.
func (ws *WeaviateStore) Build(ctx context.Context, chunks []Chunk, force bool) error {
	exists, err := ws.client.Schema().ClassExistenceChecker().
		WithClassName(ws.config.ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class existence: %w", err)
	}
	if exists {
		if !force {
			return ErrIndexExists
		}
		ws.logger.Info("Dropping existing knowledge base class", "class", ws.config.ClassName)
		if err := ws.client.Schema().ClassDeleter().
			WithClassName(ws.config.ClassName).Do(ctx); err != nil {
			return fmt.Errorf("failed to delete existing class: %w", err)
		}
	}

	if err := ws.createClass(ctx); err != nil {
		return err
	}
	if err := ws.insertChunks(ctx, chunks); err != nil {
		return err
	}

	ws.mu.Lock()
	ws.loaded = true
	ws.mu.Unlock()

	ws.logger.Info("Knowledge base built",
		"class", ws.config.ClassName,
		"chunks", len(chunks),
		"model", ws.embedder.ModelName())
	return nil
}

// Load attaches to an existing class, failing with ErrNotReady when the
// class is absent and ErrModelMismatch when it was built with a different
// embedding model.
func (ws *WeaviateStore) Load(ctx context.Context) error {
	class, err := ws.client.Schema().ClassGetter().
		WithClassName(ws.config.ClassName).Do(ctx)
	if err != nil || class == nil {
		return ErrNotReady
	}

	if model := modelFromDescription(class.Description); model != "" && model != ws.embedder.ModelName() {
		return fmt.Errorf("%w: index has %q, configured %q",
			ErrModelMismatch, model, ws.embedder.ModelName())
	}

	ws.mu.Lock()
	ws.loaded = true
	ws.mu.Unlock()

	ws.logger.Info("Knowledge base loaded", "class", ws.config.ClassName)
	return nil
}

// Update appends chunks to a loaded index.
func (ws *WeaviateStore) Update(ctx context.Context, chunks []Chunk) error {
	if !ws.isLoaded() {
		if err := ws.Load(ctx); err != nil {
			return err
		}
	}
	if err := ws.insertChunks(ctx, chunks); err != nil {
		return err
	}
	ws.logger.Info("Knowledge base updated",
		"class", ws.config.ClassName,
		"added_chunks", len(chunks))
	return nil
}

// Info returns the current size and model of the index.
func (ws *WeaviateStore) Info(ctx context.Context) (IndexInfo, error) {
	info := IndexInfo{
		ClassName:      ws.config.ClassName,
		EmbeddingModel: ws.embedder.ModelName(),
		Ready:          ws.isLoaded(),
	}

	count, err := ws.count(ctx)
	if err != nil {
		return info, err
	}
	info.ChunkCount = count
	return info, nil
}

// QueryText embeds the query and returns up to k nearest chunks, scored by
// cosine certainty, unfiltered by any threshold. A non-empty fields map is
// applied as an exact-match where filter inside the neighbor query.
func (ws *WeaviateStore) QueryText(ctx context.Context, query string, k int, fields map[string]string) ([]ScoredChunk, error) {
	if !ws.isLoaded() {
		return nil, ErrNotReady
	}

	vec, err := ws.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	builder := ws.client.GraphQL().Get().
		WithClassName(ws.config.ClassName).
		WithFields(chunkFields()...).
		WithNearVector(ws.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(k)
	if len(fields) > 0 {
		builder = builder.WithWhere(whereFromFields(fields))
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("similarity query failed: %s", result.Errors[0].Message)
	}

	items, err := ws.itemsFromResponse(result)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredChunk, 0, len(items))
	for _, item := range items {
		sc := ScoredChunk{Chunk: chunkFromItem(item)}
		if additional, ok := item["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				sc.Score = certainty
			}
		}
		scored = append(scored, sc)
	}
	return scored, nil
}

// ByMetadata returns chunks whose metadata matches every given field
// exactly, up to limit, ordered by chunk index.
func (ws *WeaviateStore) ByMetadata(ctx context.Context, fieldValues map[string]string, limit int) ([]Chunk, error) {
	if !ws.isLoaded() {
		return nil, ErrNotReady
	}
	if len(fieldValues) == 0 {
		return nil, fmt.Errorf("metadata query requires at least one field")
	}

	result, err := ws.client.GraphQL().Get().
		WithClassName(ws.config.ClassName).
		WithFields(chunkFields()...).
		WithWhere(whereFromFields(fieldValues)).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("metadata query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("metadata query failed: %s", result.Errors[0].Message)
	}

	items, err := ws.itemsFromResponse(result)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(items))
	for _, item := range items {
		chunks = append(chunks, chunkFromItem(item))
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Metadata.ChunkIndex < chunks[j].Metadata.ChunkIndex
	})
	return chunks, nil
}

// whereFromFields builds an exact-match filter over the given metadata
// fields in deterministic key order.
func whereFromFields(fieldValues map[string]string) *filters.WhereBuilder {
	keys := make([]string, 0, len(fieldValues))
	for k := range fieldValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, k := range keys {
		operands = append(operands, filters.Where().
			WithPath([]string{k}).
			WithOperator(filters.Equal).
			WithValueText(fieldValues[k]))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

func (ws *WeaviateStore) createClass(ctx context.Context) error {
	textProp := func(name string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}}
	}
	intProp := func(name string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"int"}}
	}

	class := &models.Class{
		Class:       ws.config.ClassName,
		Description: modelDescriptionPrefix + ws.embedder.ModelName(),
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			textProp("text"),
			textProp("chunk_id"),
			intProp("chunk_index"),
			intProp("total_chunks_in_doc"),
			intProp("chunk_size"),
			intProp("original_document_index"),
			textProp("source"),
			textProp("file_name"),
			textProp("directory"),
		},
	}

	if err := ws.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", ws.config.ClassName, err)
	}
	return nil
}

// insertChunks embeds the chunk texts and writes them in batches.
func (ws *WeaviateStore) insertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ws.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	batchSize := ws.config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		objects := make([]*models.Object, 0, end-start)
		for i := start; i < end; i++ {
			m := chunks[i].Metadata
			objects = append(objects, &models.Object{
				Class: ws.config.ClassName,
				Properties: map[string]interface{}{
					"text":                    chunks[i].Text,
					"chunk_id":                m.ChunkID,
					"chunk_index":             m.ChunkIndex,
					"total_chunks_in_doc":     m.TotalChunksInDoc,
					"chunk_size":              m.ChunkSize,
					"original_document_index": m.OriginalDocumentIndex,
					"source":                  m.Source,
					"file_name":               m.FileName,
					"directory":               m.Directory,
				},
				Vector: models.C11yVector(vectors[i]),
			})
		}

		resp, err := ws.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch insert failed: %w", err)
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch insert rejected object: %s", obj.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

// count runs an aggregate meta count over the class.
func (ws *WeaviateStore) count(ctx context.Context) (int64, error) {
	result, err := ws.client.GraphQL().Aggregate().
		WithClassName(ws.config.ClassName).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("aggregate query failed: %s", result.Errors[0].Message)
	}

	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("aggregate response missing Aggregate section")
	}
	rows, ok := agg[ws.config.ClassName].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int64(count), nil
}

func (ws *WeaviateStore) isLoaded() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.loaded
}

func (ws *WeaviateStore) itemsFromResponse(result *models.GraphQLResponse) ([]map[string]interface{}, error) {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("query response missing Get section")
	}
	raw, ok := data[ws.config.ClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	items := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if item, ok := r.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func chunkFields() []graphql.Field {
	return []graphql.Field{
		{Name: "text"},
		{Name: "chunk_id"},
		{Name: "chunk_index"},
		{Name: "total_chunks_in_doc"},
		{Name: "chunk_size"},
		{Name: "original_document_index"},
		{Name: "source"},
		{Name: "file_name"},
		{Name: "directory"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
			{Name: "distance"},
		}},
	}
}

func chunkFromItem(item map[string]interface{}) Chunk {
	var c Chunk
	if v, ok := item["text"].(string); ok {
		c.Text = v
	}
	if v, ok := item["chunk_id"].(string); ok {
		c.Metadata.ChunkID = v
	}
	if v, ok := item["chunk_index"].(float64); ok {
		c.Metadata.ChunkIndex = int(v)
	}
	if v, ok := item["total_chunks_in_doc"].(float64); ok {
		c.Metadata.TotalChunksInDoc = int(v)
	}
	if v, ok := item["chunk_size"].(float64); ok {
		c.Metadata.ChunkSize = int(v)
	}
	if v, ok := item["original_document_index"].(float64); ok {
		c.Metadata.OriginalDocumentIndex = int(v)
	}
	if v, ok := item["source"].(string); ok {
		c.Metadata.Source = v
	}
	if v, ok := item["file_name"].(string); ok {
		c.Metadata.FileName = v
	}
	if v, ok := item["directory"].(string); ok {
		c.Metadata.Directory = v
	}
	return c
}

func modelFromDescription(description string) string {
	if idx := strings.Index(description, modelDescriptionPrefix); idx >= 0 {
		return strings.TrimSpace(description[idx+len(modelDescriptionPrefix):])
	}
	return ""
}
