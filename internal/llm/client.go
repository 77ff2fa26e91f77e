// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second

	// MaxRetries caps Config.MaxRetries.
	MaxRetries = 3

	// maxResponseSize bounds how much of a reply body is read.
	maxResponseSize = 10 * 1024 * 1024

	retryBaseDelay = 500 * time.Millisecond
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }
func UserMessage(content string) Message   { return Message{Role: "user", Content: content} }

// Reply is a completed answer.
type Reply struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
	MaxTokens   int
}

// Client is safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxRetries  int
	temperature float64
	maxTokens   int
	retryDelay  time.Duration
	httpClient  *http.Client
}

func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retryDelay:  retryBaseDelay,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.maxRetries > MaxRetries {
		c.maxRetries = MaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.httpClient = &http.Client{Timeout: timeout}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// KeyFingerprint identifies the API key in logs without exposing it.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends messages and returns the first choice. It returns *AuthError
// without touching the network when no key is configured.
func (c *Client) Chat(ctx context.Context, messages []Message) (Reply, error) {
	if c.apiKey == "" {
		return Reply{}, &AuthError{Err: ErrNoAPIKey}
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Reply{}, &ApiError{Message: "encode request", Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			logger.LogWarn("LLM request retry %d/%d in %v: %v", attempt, c.maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return Reply{}, &ApiError{Message: "request cancelled", Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		reply, err := c.do(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var apiErr *ApiError
		if !errors.As(err, &apiErr) || !apiErr.Temporary() || ctx.Err() != nil {
			return Reply{}, err
		}
	}
	return Reply{}, lastErr
}

func (c *Client) do(ctx context.Context, body []byte) (Reply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, &ApiError{Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, &ApiError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	logger.LogDebug("LLM response %d from %s model=%s key=%s in %v",
		resp.StatusCode, req.URL.Host, c.model, c.KeyFingerprint(), time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return Reply{}, &ApiError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}
	if len(raw) > maxResponseSize {
		return Reply{}, &ApiError{StatusCode: resp.StatusCode, Message: "response exceeds size limit"}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Reply{}, &AuthError{StatusCode: resp.StatusCode, Err: errors.New(providerMessage(raw, resp.Status))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, &ApiError{StatusCode: resp.StatusCode, Message: providerMessage(raw, resp.Status)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Reply{}, &ApiError{StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return Reply{}, &ApiError{StatusCode: resp.StatusCode, Message: "response has no content"}
	}

	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return Reply{
		Text:             parsed.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// providerMessage extracts error.message from a provider body, falling back
// to the HTTP status text.
func providerMessage(raw []byte, status string) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return fmt.Sprintf("provider returned %s", status)
}
