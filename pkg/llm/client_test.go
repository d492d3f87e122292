package llm

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

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		APIEndpoint:   endpoint,
		APIKey:        "test-key",
		ModelName:     "test-model",
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(&Config{APIEndpoint: "http://localhost"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGenerateReturnsCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "resposta gerada"}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Generate(context.Background(), "instrucoes", "pergunta")
	require.NoError(t, err)
	assert.Equal(t, "resposta gerada", text)
}

func TestGenerateAuthError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "", "pergunta")
	assert.ErrorIs(t, err, ErrAuth)
	// Auth failures are not retried.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "", "pergunta")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Generate(context.Background(), "", "pergunta")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateBreakerOpensAfterSustainedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.Generate(ctx, "", "pergunta")
		require.Error(t, err)
	}
	// The breaker now fails fast without reaching the server.
	srv.Close()
	_, err := c.Generate(ctx, "", "pergunta")
	assert.ErrorIs(t, err, ErrConnection)
}

func TestGenerateConnectionError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Generate(context.Background(), "", "pergunta")
	assert.ErrorIs(t, err, ErrConnection)
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "", "pergunta")
	assert.ErrorIs(t, err, ErrConnection)
}
