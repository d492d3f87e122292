package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingTestServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(len(text)), 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestEmbedTextsOrderAndValues(t *testing.T) {
	var calls int32
	srv := newEmbeddingTestServer(t, &calls)
	defer srv.Close()

	es := NewEmbeddingService(&EmbeddingConfig{
		APIEndpoint:   srv.URL,
		APIKey:        "test-key",
		ModelName:     "test-model",
		BatchSize:     2,
		RetryAttempts: 0,
		RetryDelay:    time.Millisecond,
	}, nil)

	vecs, err := es.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 1}, vecs[2])
	// Three inputs with batch size two means two requests.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedTextsUsesCache(t *testing.T) {
	var calls int32
	srv := newEmbeddingTestServer(t, &calls)
	defer srv.Close()

	cache := NewMemoryEmbeddingCache()
	es := NewEmbeddingService(&EmbeddingConfig{
		APIEndpoint: srv.URL,
		APIKey:      "test-key",
		ModelName:   "test-model",
		BatchSize:   10,
	}, cache)

	ctx := context.Background()
	_, err := es.EmbedTexts(ctx, []string{"repetido", "novo"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Second call is fully served from the cache.
	vecs, err := es.EmbedTexts(ctx, []string{"repetido", "novo"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedTextsCacheIsModelScoped(t *testing.T) {
	cache := NewMemoryEmbeddingCache()
	ctx := context.Background()
	cache.Set(ctx, "model-a", "texto", []float32{1})

	_, ok := cache.Get(ctx, "model-b", "texto")
	assert.False(t, ok)
	vec, ok := cache.Get(ctx, "model-a", "texto")
	assert.True(t, ok)
	assert.Equal(t, []float32{1}, vec)
}

func TestEmbedTextsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{{Index: 0, Embedding: []float32{1}}},
		})
	}))
	defer srv.Close()

	es := NewEmbeddingService(&EmbeddingConfig{
		APIEndpoint:   srv.URL,
		ModelName:     "test-model",
		BatchSize:     10,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, nil)

	vec, err := es.EmbedQuery(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedTextsDoesNotRetryAuthErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	es := NewEmbeddingService(&EmbeddingConfig{
		APIEndpoint:   srv.URL,
		ModelName:     "test-model",
		BatchSize:     10,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, nil)

	_, err := es.EmbedQuery(context.Background(), "texto")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	es := NewEmbeddingService(nil, nil)
	vecs, err := es.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
