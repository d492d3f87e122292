// Package handlers exposes the assistant over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/docent-ai/docent/pkg/monitoring"
	"github.com/docent-ai/docent/pkg/rag"
)

const serviceName = "docent-api"

// Assistant is the surface of the pipeline the HTTP layer needs.
type Assistant interface {
	Chat(ctx context.Context, message string) rag.ChatResult
	GenerateMultipleChoiceQuestion(ctx context.Context, topic string) (rag.QuestionResult, error)
	GenerateQuizSet(ctx context.Context, topics []string) rag.QuizSet
	Statistics(ctx context.Context, query string) rag.ChatStatistics
	Info(ctx context.Context) (rag.IndexInfo, error)
	State() rag.PipelineState
}

// Handler serves the assistant API.
type Handler struct {
	assistant Assistant
	logger    *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(assistant Assistant) *Handler {
	return &Handler{
		assistant: assistant,
		logger:    slog.Default().With("component", "http-handler"),
	}
}

// Register mounts every route on the router.
func (h *Handler) Register(r *mux.Router) {
	r.Use(h.requestIDMiddleware)
	r.Use(h.metricsMiddleware)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/chat", h.Chat).Methods(http.MethodPost)
	r.HandleFunc("/generate-question", h.GenerateQuestion).Methods(http.MethodPost)
	r.HandleFunc("/generate-quiz", h.GenerateQuiz).Methods(http.MethodPost)
	r.HandleFunc("/statistics", h.Statistics).Methods(http.MethodPost)
	r.HandleFunc("/knowledge-base/info", h.KnowledgeBaseInfo).Methods(http.MethodGet)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat answers a user message. Plain text bodies are accepted and treated
// as the message itself.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "text/plain" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			req.Message = string(body)
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Message == "" {
		writeFieldErrors(w, map[string][]string{"message": {"This field is required."}})
		return
	}

	writeJSON(w, http.StatusOK, h.assistant.Chat(r.Context(), req.Message))
}

type questionRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

type questionResponse struct {
	Question      string            `json:"question"`
	Topic         string            `json:"topic"`
	Options       map[string]string `json:"options"`
	Answer        string            `json:"answer"`
	Explanation   string            `json:"explanation"`
	Difficulty    string            `json:"difficulty"`
	Sources       []rag.SourceRef   `json:"sources"`
	Confidence    rag.Confidence    `json:"confidence"`
	AvgScore      float64           `json:"avg_score"`
	DocumentsUsed int               `json:"documents_used"`
}

// GenerateQuestion produces one multiple-choice question for a topic.
func (h *Handler) GenerateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeFieldErrors(w, map[string][]string{"topic": {"This field is required."}})
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}

	q, err := h.assistant.GenerateMultipleChoiceQuestion(r.Context(), req.Topic)
	if err != nil {
		h.logger.Error("Question generation failed", "error", err, "topic", req.Topic)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error generating question: %v", err))
		return
	}
	if !q.Valid {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":        "Invalid question format from RAG pipeline",
			"raw_response": q.Raw,
		})
		return
	}

	writeJSON(w, http.StatusOK, questionResponse{
		Question:      q.Question,
		Topic:         q.Topic,
		Options:       q.Options,
		Answer:        q.Answer,
		Explanation:   q.Explanation,
		Difficulty:    req.Difficulty,
		Sources:       q.Sources,
		Confidence:    q.Confidence,
		AvgScore:      q.AvgScore,
		DocumentsUsed: q.DocumentsUsed,
	})
}

type quizRequest struct {
	Topics []string `json:"topics"`
}

// GenerateQuiz produces one question per requested topic.
func (h *Handler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Topics) == 0 {
		writeFieldErrors(w, map[string][]string{"topics": {"This field is required."}})
		return
	}

	writeJSON(w, http.StatusOK, h.assistant.GenerateQuizSet(r.Context(), req.Topics))
}

type statisticsRequest struct {
	Query string `json:"query"`
}

// Statistics runs a chat turn and returns only its metrics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	var req statisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeFieldErrors(w, map[string][]string{"query": {"This field is required."}})
		return
	}

	writeJSON(w, http.StatusOK, h.assistant.Statistics(r.Context(), req.Query))
}

// KnowledgeBaseInfo reports the state of the index.
func (h *Handler) KnowledgeBaseInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.assistant.Info(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("knowledge base unavailable: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Health reports liveness plus the pipeline state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"state":   string(h.assistant.State()),
	})
}

// requestIDMiddleware tags every request with an X-Request-ID, reusing the
// caller's value when one is supplied.
func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		h.logger.Debug("request received",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		monitoring.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, fields)
}
