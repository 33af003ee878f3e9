// Package deepseek provides a provider.Client implementation backed by
// DeepSeek's chat completions API, which is wire-compatible with OpenAI's
// chat API. The adapter reuses github.com/sashabaranov/go-openai pointed
// at DeepSeek's base URL rather than hand-rolling an HTTP client.
package deepseek

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/provider/estimator"
)

const baseURL = "https://api.deepseek.com/v1"

const defaultModel = "deepseek-chat"

// ChatClient captures the subset of go-openai used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements provider.Client on top of DeepSeek's OpenAI-compatible
// chat completions endpoint.
type Client struct {
	chat ChatClient
}

// New builds a DeepSeek-backed client from a chat client.
func New(chat ChatClient) (*Client, error) {
	if chat == nil {
		return nil, errors.New("deepseek: chat client is required")
	}
	return &Client{chat: chat}, nil
}

// NewFromAPIKey constructs a client using go-openai's default HTTP
// transport, retargeted at DeepSeek's base URL.
func NewFromAPIKey(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("deepseek: DEEPSEEK_API_KEY is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return New(openai.NewClientWithConfig(cfg))
}

// Kind identifies this adapter.
func (c *Client) Kind() provider.Kind { return provider.DeepSeek }

// Generate renders prompt as a single user chat message.
func (c *Client) Generate(ctx context.Context, prompt string, cfg provider.ModelConfig) (provider.Completion, error) {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return provider.Completion{}, fmt.Errorf("deepseek generate: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return provider.Completion{}, fmt.Errorf("deepseek generate: %w", provider.ErrBadResponse)
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return provider.Completion{}, fmt.Errorf("deepseek generate: %w", provider.ErrEmptyContent)
	}

	usage := provider.Usage{
		InputTokens:  uint32(resp.Usage.PromptTokens),
		OutputTokens: uint32(resp.Usage.CompletionTokens),
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.InputTokens = estimator.Estimate(prompt, string(provider.DeepSeek))
		usage.OutputTokens = estimator.Estimate(text, string(provider.DeepSeek))
		usage.Estimated = true
	}

	return provider.Completion{Content: text, Usage: usage}, nil
}

// classify maps go-openai's *openai.APIError onto the gateway's sentinel
// set by HTTP status code.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", provider.ErrUnauthorized, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
		return fmt.Errorf("%w: %v", provider.ErrBadResponse, err)
	}
	return err
}
