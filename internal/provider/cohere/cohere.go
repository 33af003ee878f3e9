// Package cohere provides a provider.Client implementation backed by
// Cohere's Chat API.
//
// No example repo or other_examples/ file in the retrieved corpus vendors
// a Cohere SDK, so this adapter talks to the Chat API directly over
// net/http rather than inventing a fake module dependency. Its New takes
// the API key plus functional Options, where the other two adapters wrap
// an SDK client; all three implement provider.Client, so the gateway
// treats them uniformly.
package cohere

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

	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/provider/estimator"
)

const (
	defaultBaseURL = "https://api.cohere.com/v1/chat"
	defaultModel   = "command-r"
	requestTimeout = 30 * time.Second
)

// HTTPDoer is satisfied by *http.Client and any fake used in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements provider.Client on top of Cohere's Chat API.
type Client struct {
	apiKey  string
	baseURL string
	http    HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Chat API endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP transport, for tests.
func WithHTTPClient(h HTTPDoer) Option {
	return func(c *Client) { c.http = h }
}

// New builds a Cohere-backed client. apiKey is required; it is sent as a
// bearer token on every request.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("cohere: COHERE_API_KEY is required")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Kind identifies this adapter.
func (c *Client) Kind() provider.Kind { return provider.Cohere }

type chatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Text string `json:"text"`
	Meta struct {
		Tokens struct {
			InputTokens  float64 `json:"input_tokens"`
			OutputTokens float64 `json:"output_tokens"`
		} `json:"tokens"`
	} `json:"meta"`
	Message string `json:"message"`
}

// Generate sends prompt as a single chat message.
func (c *Client) Generate(ctx context.Context, prompt string, cfg provider.ModelConfig) (provider.Completion, error) {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Message:     prompt,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return provider.Completion{}, fmt.Errorf("cohere generate: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return provider.Completion{}, fmt.Errorf("cohere generate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("cohere generate: %w", provider.ErrBadResponse)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("cohere generate: read response: %w", err)
	}

	if err := classify(resp.StatusCode); err != nil {
		return provider.Completion{}, fmt.Errorf("cohere generate: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return provider.Completion{}, fmt.Errorf("cohere generate: decode response: %w", provider.ErrBadResponse)
	}

	text := parsed.Text
	if strings.TrimSpace(text) == "" {
		return provider.Completion{}, fmt.Errorf("cohere generate: %w", provider.ErrEmptyContent)
	}

	usage := provider.Usage{
		InputTokens:  uint32(parsed.Meta.Tokens.InputTokens),
		OutputTokens: uint32(parsed.Meta.Tokens.OutputTokens),
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.InputTokens = estimator.Estimate(prompt, string(provider.Cohere))
		usage.OutputTokens = estimator.Estimate(text, string(provider.Cohere))
		usage.Estimated = true
	}

	return provider.Completion{Content: text, Usage: usage}, nil
}

func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return provider.ErrRateLimited
	case status >= 300:
		return provider.ErrBadResponse
	default:
		return nil
	}
}
