// Package provider defines the single capability every upstream language
// model is consumed through. Concrete adapters (claude, deepseek, cohere)
// each implement Client; callers never depend on a provider-specific
// type, only on this interface and the Kind tag used to select one at
// startup.
package provider

import "context"

// Kind tags which concrete adapter a Client was built from.
type Kind string

const (
	Claude   Kind = "claude"
	DeepSeek Kind = "deepseek"
	Cohere   Kind = "cohere"
)

// ModelConfig parameterizes a single generation call.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one Generate call. Counts are
// provider-reported when available; Estimated is true when the gateway
// fell back to the estimator because the provider did not report usage.
type Usage struct {
	InputTokens  uint32
	OutputTokens uint32
	Estimated    bool
}

// Completion is the result of one Generate call.
type Completion struct {
	Content string
	Usage   Usage
}

// Client is the provider-agnostic capability: render a prompt, get text
// and usage back. Implementations translate ModelConfig into whatever
// shape their upstream API expects (chat messages, single message,
// single user message + max tokens, ...).
type Client interface {
	Generate(ctx context.Context, prompt string, cfg ModelConfig) (Completion, error)
	Kind() Kind
}
