// Package rag implements the retrieval-augmented assistant: document
// loading, chunking, embedding, the Weaviate knowledge store, thresholded
// similarity search and the chat/quiz pipeline on top of them.
package rag

import "context"

// Chunk is one retrievable unit of text cut from a source document.
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries document provenance plus the chunk's position
// within its document. All fields are stored alongside the vector and can
// be filtered on.
type ChunkMetadata struct {
	ChunkID               string `json:"chunk_id"`
	ChunkIndex            int    `json:"chunk_index"`
	TotalChunksInDoc      int    `json:"total_chunks_in_doc"`
	ChunkSize             int    `json:"chunk_size"`
	OriginalDocumentIndex int    `json:"original_document_index"`
	Source                string `json:"source"`
	FileName              string `json:"file_name"`
	Directory             string `json:"directory"`
}

// ScoredChunk is a retrieved chunk with its cosine similarity to the query
// on a 0..1 scale, higher meaning closer.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// SourceRef identifies where an answer came from, for display next to the
// response.
type SourceRef struct {
	FileName   string  `json:"file_name"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Confidence is the qualitative band derived from retrieval scores.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	// ConfidenceError marks responses produced while the generation
	// provider was failing; no retrieval quality is implied.
	ConfidenceError Confidence = "error"
)

// ChatResult is the full answer to a chat turn.
type ChatResult struct {
	Answer        string      `json:"response"`
	Sources       []SourceRef `json:"sources"`
	Confidence    Confidence  `json:"confidence"`
	AvgScore      float64     `json:"avg_score"`
	DocumentsUsed int         `json:"documents_used"`
	RelatedPaths  []string    `json:"related_paths,omitempty"`
}

// QuestionResult is one generated multiple-choice question. Options holds
// the five letters A through E when Valid is true; when validation of the
// provider output failed, Valid is false and Raw carries the unparsed
// provider text.
type QuestionResult struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	Answer        string            `json:"answer"`
	Explanation   string            `json:"explanation,omitempty"`
	Topic         string            `json:"topic"`
	Sources       []SourceRef       `json:"sources"`
	Confidence    Confidence        `json:"confidence"`
	AvgScore      float64           `json:"avg_score"`
	DocumentsUsed int               `json:"documents_used"`
	Valid         bool              `json:"valid"`
	Raw           string            `json:"raw,omitempty"`
}

// QuizSet is a batch of generated questions across several topics.
type QuizSet struct {
	Topics              []string         `json:"topics"`
	Questions           []QuestionResult `json:"questions"`
	TotalQuestions      int              `json:"total_questions"`
	SuccessfulQuestions int              `json:"successful_questions"`
	FailedQuestions     int              `json:"failed_questions"`
}

// ChatStatistics summarizes a chat turn for diagnostics.
type ChatStatistics struct {
	Query          string     `json:"query"`
	ResponseLength int        `json:"response_length"`
	SourcesCount   int        `json:"sources_count"`
	Confidence     Confidence `json:"confidence"`
	AvgScore       float64    `json:"avg_score"`
	DocumentsUsed  int        `json:"documents_used"`
}

// ExtractedDocument is the raw text of one source file before chunking.
type ExtractedDocument struct {
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentMetadata identifies a loaded source file.
type DocumentMetadata struct {
	Source    string `json:"source"`
	FileName  string `json:"file_name"`
	Directory string `json:"directory"`
}

// IndexInfo summarizes the state of the knowledge store.
type IndexInfo struct {
	ClassName      string `json:"class_name"`
	ChunkCount     int64  `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	Ready          bool   `json:"ready"`
}

// EmbeddingProvider turns text into vectors. Implementations must return
// one vector per input text, in order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// KnowledgeStore persists chunk vectors and serves similarity queries.
type KnowledgeStore interface {
	// Build creates the index from scratch. With force set an existing
	// index is dropped first; without it an existing index is an error.
	Build(ctx context.Context, chunks []Chunk, force bool) error
	// Load attaches to an existing index, verifying it was built with the
	// currently configured embedding model.
	Load(ctx context.Context) error
	// Update appends chunks to an existing, model-compatible index.
	Update(ctx context.Context, chunks []Chunk) error
	Info(ctx context.Context) (IndexInfo, error)
	// QueryText embeds the query and returns up to k nearest chunks with
	// their similarity scores, unfiltered by threshold. A non-empty fields
	// map restricts candidates to chunks whose metadata fields equal all
	// the given values before the neighbor search.
	QueryText(ctx context.Context, query string, k int, fields map[string]string) ([]ScoredChunk, error)
	// ByMetadata returns chunks whose metadata fields equal all the given
	// values, up to limit.
	ByMetadata(ctx context.Context, fields map[string]string, limit int) ([]Chunk, error)
}

// DocumentSource yields the raw documents to index.
type DocumentSource interface {
	LoadAll() ([]ExtractedDocument, error)
}

// Generator produces completions from an instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EmbeddingCache memoizes embeddings by (model, text). A miss returns
// ok=false with no error.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool)
	Set(ctx context.Context, model, text string, vec []float32)
}
