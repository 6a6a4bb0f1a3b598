// Package llm provides a minimal chat-completion client for the extraction
// collaborator, with retry, client-side rate limiting, and timeout bounds.
// It speaks the OpenAI-compatible API that local runtimes like Ollama expose.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Config configures the LLM client.
type Config struct {
	// Endpoint is the OpenAI-compatible API base URL (e.g., "http://localhost:11434/v1").
	Endpoint string

	// Model is the model identifier sent with every request.
	Model string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds a single completion request.
	Timeout time.Duration

	// RequestsPerMinute rate-limits outgoing calls. 0 disables limiting.
	RequestsPerMinute int
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a completion request.
type Request struct {
	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// Response contains the completion result.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the model that produced the response.
	Model string

	// TokensUsed is the total tokens consumed (if reported).
	TokensUsed int

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Client calls the extraction collaborator. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// New creates an LLM client.
func New(config Config, opts ...Option) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	client := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
	}

	if config.RequestsPerMinute > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), 1)
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Complete sends a chat completion request, honoring the rate limiter and
// retrying transient failures with exponential backoff.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("request has no messages")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	backoff := c.retry.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Jittered backoff between attempts.
			sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleep):
			}
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		resp, err := c.doRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		c.logger.Warn("LLM request failed, retrying",
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"error", err)
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", c.retry.MaxAttempts, lastErr)
}

// doRequest performs one HTTP round trip.
func (c *Client) doRequest(ctx context.Context, body []byte) (*Response, error) {
	url := strings.TrimSuffix(c.config.Endpoint, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: truncateBody(respBody)}
	}

	return parseResponse(respBody)
}

// buildRequestBody creates the OpenAI-compatible JSON request body.
func (c *Client) buildRequestBody(req Request) ([]byte, error) {
	payload := map[string]any{
		"model":    c.config.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	return json.Marshal(payload)
}

// completionResponse mirrors the OpenAI chat-completion response shape.
type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// parseResponse extracts the Response from the provider JSON.
func parseResponse(body []byte) (*Response, error) {
	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	return &Response{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
