// Package claude provides a provider.Client implementation backed by the
// Anthropic Claude Messages API, using github.com/anthropics/anthropic-sdk-go.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/provider/estimator"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, satisfied by *sdk.MessageService in production and a fake in
// tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements provider.Client on top of the Anthropic Messages API.
type Client struct {
	msg MessagesClient
}

// New builds a Claude-backed client from an Anthropic messages client.
func New(msg MessagesClient) (*Client, error) {
	if msg == nil {
		return nil, errors.New("claude: messages client is required")
	}
	return &Client{msg: msg}, nil
}

// NewFromAPIKey constructs a client using the default anthropic-sdk-go
// HTTP client, aborting if apiKey is empty (the credential is required
// at startup per the gateway's contract).
func NewFromAPIKey(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("claude: CLAUDE_API_KEY is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages)
}

// Kind identifies this adapter.
func (c *Client) Kind() provider.Kind { return provider.Claude }

// Generate renders prompt as a single user message and returns the text
// of every text block of the response, concatenated in order.
func (c *Client) Generate(ctx context.Context, prompt string, cfg provider.ModelConfig) (provider.Completion, error) {
	model := cfg.Model
	if model == "" {
		model = string(sdk.ModelClaudeSonnet4_5)
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.msg.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(cfg.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return provider.Completion{}, fmt.Errorf("claude generate: %w", classify(err))
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			content.WriteString(text)
		}
	}
	text := content.String()
	if strings.TrimSpace(text) == "" {
		return provider.Completion{}, fmt.Errorf("claude generate: %w", provider.ErrEmptyContent)
	}

	usage := provider.Usage{
		InputTokens:  uint32(resp.Usage.InputTokens),
		OutputTokens: uint32(resp.Usage.OutputTokens),
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.InputTokens = estimator.Estimate(prompt, string(provider.Claude))
		usage.OutputTokens = estimator.Estimate(text, string(provider.Claude))
		usage.Estimated = true
	}

	return provider.Completion{Content: text, Usage: usage}, nil
}

// classify maps SDK transport errors onto the gateway's sentinel set.
// anthropic-sdk-go reports HTTP status via *sdk.Error; errors that do not
// carry a status code are returned unchanged.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return fmt.Errorf("%w: %v", provider.ErrUnauthorized, err)
		case 429:
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
		return fmt.Errorf("%w: %v", provider.ErrBadResponse, err)
	}
	return err
}
