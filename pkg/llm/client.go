// Package llm provides the chat-completions client used for answer and
// quiz generation, wrapped in a circuit breaker so a failing provider
// degrades quickly instead of stalling every request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"
)

// Sentinel errors for provider failures, matched with errors.Is.
var (
	ErrMissingAPIKey = errors.New("llm: API key is not configured")
	ErrAuth          = errors.New("llm: authentication failed")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrTimeout       = errors.New("llm: request timed out")
	ErrConnection    = errors.New("llm: connection failed")
)

// Config holds configuration for the completion client.
type Config struct {
	APIEndpoint    string        `json:"api_endpoint"`
	APIKey         string        `json:"-"`
	ModelName      string        `json:"model_name"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RetryAttempts  int           `json:"retry_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
}

// DefaultConfig returns the completion defaults.
func DefaultConfig() *Config {
	return &Config{
		APIEndpoint:    "https://api.openai.com/v1/chat/completions",
		ModelName:      "gpt-4o-mini",
		Temperature:    0.7,
		MaxTokens:      1024,
		RequestTimeout: 60 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Second,
	}
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	config     *Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a completion client. The API key must be present; the
// process should refuse to start without one rather than fail on the first
// chat request.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		breaker: breaker,
		logger:  slog.Default().With("component", "llm-client"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the system and user prompts and returns the completion
// text. Transient failures are retried; sustained failure opens the
// breaker and subsequent calls fail fast with ErrConnection.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generate(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit breaker open", ErrConnection)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *Client) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	jsonBody, err := json.Marshal(chatRequest{
		Model:       c.config.ModelName,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Completion request failed, retrying",
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return "", classifyError(ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		text, err := c.doRequest(ctx, jsonBody)
		if err == nil {
			return text, nil
		}
		lastErr = err
		// Auth errors will not recover within a retry loop.
		if errors.Is(err, ErrAuth) {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) doRequest(ctx context.Context, jsonBody []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIEndpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d", ErrConnection, resp.StatusCode)
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrConnection, err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrConnection)
	}
	return apiResp.Choices[0].Message.Content, nil
}

// classifyError maps transport failures onto the sentinel errors.
func classifyError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
