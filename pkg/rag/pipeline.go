package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/docent-ai/docent/pkg/llm"
	"github.com/docent-ai/docent/pkg/monitoring"
	"github.com/docent-ai/docent/pkg/topics"
)

// PipelineState tracks the lifecycle of the knowledge base.
type PipelineState string

const (
	StateUninitialized PipelineState = "uninitialized"
	StateLoading       PipelineState = "loading"
	StateReady         PipelineState = "ready"
	StateBuildFailed   PipelineState = "build_failed"
)

// User-facing responses for degraded situations.
const (
	responseNoResults      = "Sorry, I couldn't find relevant information about your question in the available documentation."
	responseNotInitialized = "O assistente ainda não foi inicializado. Tente novamente em instantes."

	apologyAPIProblem = "Desculpe, houve um problema ao processar sua solicitação pela API."
	apologyTimeout    = "Desculpe, a solicitação excedeu o tempo limite."
	apologyAuth       = "Erro de autenticação. Verifique sua chave da API."
	apologyDefault    = "Desculpe, algo deu errado."
)

const chatSystemPrompt = `Você é um assistente especializado em legislação tributária e assuntos da SEFAZ-PE (Secretaria da Fazenda do Estado de Pernambuco).

Suas responsabilidades incluem:
1. Responder perguntas sobre ICMS, incentivos fiscais e legislação tributária
2. Fornecer informações precisas baseadas na documentação oficial
3. Explicar conceitos complexos de forma clara e acessível
4. Sempre citar as fontes quando possível

IMPORTANTE:
- Baseie suas respostas APENAS no contexto fornecido
- Se a informação não estiver no contexto, diga que não tem a informação
- Mantenha um tom profissional mas acessível
- Use linguagem clara e evite jargões desnecessários
- Sempre mencione as fontes dos documentos quando relevante`

const quizSystemPrompt = `Você é um tutor e elaborador de materiais de estudo especializado em legislação tributária e assuntos da SEFAZ-PE.

Sua responsabilidade é criar uma questão de múltipla escolha (com 5 alternativas: A, B, C, D, E) que teste o conhecimento do usuário sobre o contexto fornecido.

REGRAS IMPORTANTES:
1. Crie a questão baseando-se ESTRITAMENTE no contexto de documentos fornecido. Não use nenhum conhecimento externo.
2. A pergunta deve ser clara, relevante e desafiadora.
3. Deve haver apenas UMA alternativa correta.
4. As quatro alternativas incorretas (distratores) devem ser plausíveis, mas erradas de acordo com o contexto.
5. Sua resposta final deve ser APENAS um objeto JSON, sem nenhum texto adicional antes ou depois.
6. A questão deve testar conhecimento específico sobre legislação tributária, ICMS, incentivos fiscais ou assuntos da SEFAZ-PE.

O formato do JSON deve ser exatamente o seguinte:
{
  "question": "O texto da pergunta que você elaborou.",
  "options": {
    "A": "Texto da alternativa A.",
    "B": "Texto da alternativa B.",
    "C": "Texto da alternativa C.",
    "D": "Texto da alternativa D.",
    "E": "Texto da alternativa E."
  },
  "answer": "A",
  "explanation": "Breve explicação de por que a resposta está correta, baseada no contexto fornecido."
}`

// Pipeline orchestrates the full assistant: knowledge base lifecycle,
// retrieval, answer generation and quiz generation.
type Pipeline struct {
	loader    DocumentSource
	chunker   *Chunker
	store     KnowledgeStore
	search    *SearchEngine
	generator Generator
	matcher   *topics.Matcher
	logger    *slog.Logger

	mu        sync.RWMutex
	state     PipelineState
	lastError error
}

// NewPipeline wires the pipeline components together. The knowledge base
// starts uninitialized; call BuildKnowledgeBase or LoadKnowledgeBase.
func NewPipeline(loader DocumentSource, chunker *Chunker, store KnowledgeStore, search *SearchEngine, generator Generator) *Pipeline {
	return &Pipeline{
		loader:    loader,
		chunker:   chunker,
		store:     store,
		search:    search,
		generator: generator,
		matcher:   topics.NewMatcher(),
		logger:    slog.Default().With("component", "rag-pipeline"),
		state:     StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() PipelineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastError returns the error recorded by the last failed build, if any.
func (p *Pipeline) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

func (p *Pipeline) setState(state PipelineState, err error) {
	p.mu.Lock()
	p.state = state
	p.lastError = err
	p.mu.Unlock()
}

// BuildKnowledgeBase loads the documents, chunks them and builds the
// vector index. Without force an existing compatible index is loaded
// instead of rebuilt; with force it is dropped and rebuilt from scratch.
func (p *Pipeline) BuildKnowledgeBase(ctx context.Context, force bool) error {
	p.setState(StateLoading, nil)

	if !force {
		switch err := p.store.Load(ctx); {
		case err == nil:
			if info, infoErr := p.store.Info(ctx); infoErr == nil {
				monitoring.KnowledgeBaseChunks.Set(float64(info.ChunkCount))
			}
			p.setState(StateReady, nil)
			p.logger.Info("Existing knowledge base loaded")
			return nil
		case errors.Is(err, ErrModelMismatch):
			p.setState(StateUninitialized, err)
			return err
		}
	}

	docs, err := p.loader.LoadAll()
	if err != nil {
		wrapped := &Error{Kind: KindBuild, Op: "build", Err: err}
		p.setState(StateBuildFailed, wrapped)
		return wrapped
	}
	if len(docs) == 0 {
		wrapped := &Error{Kind: KindBuild, Op: "build", Err: errors.New("no documents extracted")}
		p.setState(StateBuildFailed, wrapped)
		return wrapped
	}

	chunks := p.chunker.ChunkDocuments(docs)
	if len(chunks) == 0 {
		wrapped := &Error{Kind: KindBuild, Op: "build", Err: errors.New("no chunks produced")}
		p.setState(StateBuildFailed, wrapped)
		return wrapped
	}
	if err := p.store.Build(ctx, chunks, force); err != nil {
		if errors.Is(err, ErrIndexExists) {
			p.setState(StateUninitialized, err)
			return err
		}
		wrapped := &Error{Kind: KindBuild, Op: "build", Err: err}
		p.setState(StateBuildFailed, wrapped)
		return wrapped
	}

	monitoring.KnowledgeBaseChunks.Set(float64(len(chunks)))
	p.setState(StateReady, nil)
	p.logger.Info("Knowledge base ready",
		"documents", len(docs),
		"chunks", len(chunks))
	return nil
}

// LoadKnowledgeBase attaches to a previously built index.
func (p *Pipeline) LoadKnowledgeBase(ctx context.Context) error {
	p.setState(StateLoading, nil)
	if err := p.store.Load(ctx); err != nil {
		p.setState(StateUninitialized, err)
		return err
	}
	p.setState(StateReady, nil)
	return nil
}

// UpdateKnowledgeBase re-reads the documents directory and appends the
// resulting chunks to the existing index. The index must have been built
// with the configured embedding model.
func (p *Pipeline) UpdateKnowledgeBase(ctx context.Context) error {
	docs, err := p.loader.LoadAll()
	if err != nil {
		return &Error{Kind: KindBuild, Op: "update", Err: err}
	}
	chunks := p.chunker.ChunkDocuments(docs)
	if err := p.store.Update(ctx, chunks); err != nil {
		if errors.Is(err, ErrModelMismatch) || errors.Is(err, ErrNotReady) {
			return err
		}
		return &Error{Kind: KindBuild, Op: "update", Err: err}
	}
	p.setState(StateReady, nil)
	return nil
}

// Info returns the state of the underlying index.
func (p *Pipeline) Info(ctx context.Context) (IndexInfo, error) {
	return p.store.Info(ctx)
}

// Chat answers one user message. Retrieval failures and provider failures
// degrade to apologetic answers; the method itself never errors.
func (p *Pipeline) Chat(ctx context.Context, message string) ChatResult {
	monitoring.ChatRequests.Inc()

	query := norm.NFC.String(message)
	p.logger.Info("Processing question", "query", query)

	if p.State() != StateReady {
		return ChatResult{
			Answer:     responseNotInitialized,
			Sources:    []SourceRef{},
			Confidence: ConfidenceError,
		}
	}

	relevant := p.search.SimilaritySearch(ctx, query)
	if len(relevant) == 0 {
		p.logger.Warn("No relevant documents found", "query", query)
		return ChatResult{
			Answer:       responseNoResults,
			Sources:      []SourceRef{},
			Confidence:   ConfidenceLow,
			RelatedPaths: p.matcher.MatchNames(query),
		}
	}

	userPrompt := fmt.Sprintf(`Pergunta do usuário: %s

Contexto dos documentos:
%s

Por favor, responda à pergunta do usuário baseando-se APENAS no contexto fornecido acima.
Se a informação não estiver no contexto, informe que a informação não está disponível.`,
		query, contextFromChunks(relevant))

	answer, err := p.generator.Generate(ctx, chatSystemPrompt, userPrompt)
	if err != nil {
		p.logger.Error("Answer generation failed", "error", err)
		monitoring.GenerationFailures.Inc()
		return ChatResult{
			Answer:     apologyFor(err),
			Sources:    []SourceRef{},
			Confidence: ConfidenceError,
		}
	}

	avg, confidence := AggregateConfidence(relevant)
	result := ChatResult{
		Answer:        strings.TrimSpace(answer),
		Sources:       sourceRefs(relevant),
		Confidence:    confidence,
		AvgScore:      avg,
		DocumentsUsed: len(relevant),
		RelatedPaths:  p.matcher.MatchNames(query),
	}
	p.logger.Info("Response generated",
		"confidence", confidence,
		"documents_used", len(relevant))
	return result
}

// GenerateMultipleChoiceQuestion builds one quiz question about the topic
// from retrieved context. It errors when no relevant context exists or the
// provider fails; provider output that does not match the expected schema
// comes back with Valid false and the raw text preserved.
func (p *Pipeline) GenerateMultipleChoiceQuestion(ctx context.Context, topic string) (QuestionResult, error) {
	monitoring.QuizRequests.Inc()

	normalized := norm.NFC.String(topic)
	p.logger.Info("Generating multiple choice question", "topic", normalized)

	if p.State() != StateReady {
		return QuestionResult{}, ErrNotReady
	}

	relevant := p.search.SimilaritySearch(ctx, normalized)
	if len(relevant) == 0 {
		return QuestionResult{}, &Error{
			Kind: KindRetrieval,
			Op:   "generate-question",
			Err:  fmt.Errorf("no relevant context for topic %q", normalized),
		}
	}

	userPrompt := fmt.Sprintf(`Tópico Sugerido para a Questão: "%s"

Contexto dos Documentos:
---
%s
---

Por favor, com base APENAS no contexto acima, crie uma questão de múltipla escolha que avalie o entendimento sobre o tópico sugerido. Siga estritamente as regras e o formato JSON definidos nas suas instruções de sistema.`,
		normalized, contextFromChunks(relevant))

	raw, err := p.generator.Generate(ctx, quizSystemPrompt, userPrompt)
	if err != nil {
		monitoring.GenerationFailures.Inc()
		return QuestionResult{}, &Error{Kind: KindGenerationProvider, Op: "generate-question", Err: err}
	}
	raw = strings.TrimSpace(raw)

	result, err := parseQuestion(raw)
	if err != nil {
		p.logger.Error("Question validation failed", "error", err, "topic", normalized)
		return QuestionResult{
			Topic:   normalized,
			Valid:   false,
			Raw:     raw,
			Sources: sourceRefs(relevant),
		}, nil
	}

	avg, confidence := AggregateConfidence(relevant)
	result.Topic = normalized
	result.Sources = sourceRefs(relevant)
	result.Confidence = confidence
	result.AvgScore = avg
	result.DocumentsUsed = len(relevant)
	p.logger.Info("Multiple choice question generated",
		"topic", normalized,
		"confidence", confidence)
	return result, nil
}

// GenerateQuizSet generates one question per topic, tallying successes and
// failures rather than aborting on the first bad topic.
func (p *Pipeline) GenerateQuizSet(ctx context.Context, quizTopics []string) QuizSet {
	set := QuizSet{
		Topics:    quizTopics,
		Questions: []QuestionResult{},
	}
	for i, topic := range quizTopics {
		p.logger.Info("Generating quiz question",
			"index", i+1,
			"total", len(quizTopics),
			"topic", topic)

		q, err := p.GenerateMultipleChoiceQuestion(ctx, topic)
		set.TotalQuestions++
		if err != nil || !q.Valid {
			set.FailedQuestions++
			p.logger.Warn("Failed to generate quiz question", "topic", topic, "error", err)
			continue
		}
		set.SuccessfulQuestions++
		set.Questions = append(set.Questions, q)
	}
	p.logger.Info("Quiz set generated",
		"successful", set.SuccessfulQuestions,
		"total", set.TotalQuestions)
	return set
}

// Statistics runs a chat turn and reduces the result to its metrics.
func (p *Pipeline) Statistics(ctx context.Context, query string) ChatStatistics {
	result := p.Chat(ctx, query)
	return ChatStatistics{
		Query:          query,
		ResponseLength: len(result.Answer),
		SourcesCount:   len(result.Sources),
		Confidence:     result.Confidence,
		AvgScore:       result.AvgScore,
		DocumentsUsed:  result.DocumentsUsed,
	}
}

// parseQuestion decodes and validates the provider's JSON question.
func parseQuestion(raw string) (QuestionResult, error) {
	var payload struct {
		Question    string            `json:"question"`
		Options     map[string]string `json:"options"`
		Answer      string            `json:"answer"`
		Explanation string            `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return QuestionResult{}, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if payload.Question == "" {
		return QuestionResult{}, fmt.Errorf("required field %q missing", "question")
	}
	if payload.Options == nil {
		return QuestionResult{}, fmt.Errorf("required field %q missing", "options")
	}
	if payload.Answer == "" {
		return QuestionResult{}, fmt.Errorf("required field %q missing", "answer")
	}
	letters := []string{"A", "B", "C", "D", "E"}
	for _, letter := range letters {
		if _, ok := payload.Options[letter]; !ok {
			return QuestionResult{}, fmt.Errorf("option %q missing", letter)
		}
	}
	validAnswer := false
	for _, letter := range letters {
		if payload.Answer == letter {
			validAnswer = true
			break
		}
	}
	if !validAnswer {
		return QuestionResult{}, fmt.Errorf("answer %q is not one of the options", payload.Answer)
	}

	return QuestionResult{
		Question:    payload.Question,
		Options:     payload.Options,
		Answer:      payload.Answer,
		Explanation: payload.Explanation,
		Valid:       true,
	}, nil
}

// contextFromChunks formats the retrieved chunks the way they are fed to
// the generator.
func contextFromChunks(chunks []ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "Document %d (Score: %.4f):\n", i+1, c.Score)
		fmt.Fprintf(&b, "Source: %s\n", c.Metadata.Source)
		fmt.Fprintf(&b, "Content: %s\n", c.Text)
		b.WriteString(strings.Repeat("-", 50))
		if i < len(chunks)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func sourceRefs(chunks []ScoredChunk) []SourceRef {
	refs := make([]SourceRef, 0, len(chunks))
	for _, c := range chunks {
		refs = append(refs, SourceRef{
			FileName:   c.Metadata.FileName,
			ChunkID:    c.Metadata.ChunkID,
			ChunkIndex: c.Metadata.ChunkIndex,
			Score:      c.Score,
		})
	}
	return refs
}

// apologyFor maps provider failures onto the user-facing apologies.
func apologyFor(err error) string {
	switch {
	case errors.Is(err, llm.ErrAuth):
		return apologyAuth
	case errors.Is(err, llm.ErrTimeout):
		return apologyTimeout
	case errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrConnection):
		return apologyAPIProblem
	default:
		return apologyDefault
	}
}
