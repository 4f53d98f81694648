package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"

	DefaultModel = "claude-3-5-haiku-latest"
)

// Client talks to the Messages API. Replies are short in-character lines,
// so every call is a single user turn with a small token budget.
type Client struct {
	apiKey      string
	model       string
	url         string
	maxTokens   int
	temperature float64
	http        *http.Client
}

type Option func(*Client)

// WithBaseURL sends requests to url instead of the public endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.url = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:      apiKey,
		model:       model,
		url:         apiURL,
		maxTokens:   150,
		temperature: 0.9,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// APIError is a non-2xx answer from the Messages API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("anthropic: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("anthropic: status %d: %s: %s", e.Status, e.Type, e.Message)
}

// Generate returns the model's text for prompt, conditioned on system.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(request{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      system,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(raw)}
		var e struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			apiErr.Type, apiErr.Message = e.Error.Type, e.Error.Message
		}
		return "", apiErr
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("empty response content")
	}
	return text, nil
}
