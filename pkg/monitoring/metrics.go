// Package monitoring holds the Prometheus collectors exposed on /metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatRequests counts chat turns processed by the pipeline.
	ChatRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docent_chat_requests_total",
		Help: "Total number of chat requests processed.",
	})

	// QuizRequests counts quiz question generation attempts.
	QuizRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docent_quiz_requests_total",
		Help: "Total number of quiz question generation attempts.",
	})

	// GenerationFailures counts completions the provider failed to
	// deliver.
	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docent_generation_failures_total",
		Help: "Total number of failed completion requests.",
	})

	// KnowledgeBaseChunks reports the chunk count of the last built
	// index.
	KnowledgeBaseChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docent_knowledge_base_chunks",
		Help: "Number of chunks in the knowledge base.",
	})

	// HTTPRequestDuration observes handler latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docent_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
