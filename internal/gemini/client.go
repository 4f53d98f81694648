package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

type Client struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *genai.ClientConfig) { c.HTTPClient = hc }
}

func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client, model: model, maxTokens: 120}, nil
}

// Generate returns the model's text for prompt, conditioned on system.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.9),
		MaxOutputTokens: c.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response content")
	}
	return text, nil
}
