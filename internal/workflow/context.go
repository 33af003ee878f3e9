package workflow

import (
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/provider"
)

// PlainEndpoint is the minimal projection of catalog.Endpoint the
// endpoint_matching step needs: just enough to prompt an LLM for a
// choice, not the full record.
type PlainEndpoint struct {
	ID          string
	Text        string
	Description string
}

// Context is the mutable state threaded through one workflow run. It is
// owned exclusively by the goroutine executing the run and is never
// shared across calls.
type Context struct {
	Sentence     string
	CallerEmail  string
	Provider     provider.Client
	ModelConfig  provider.ModelConfig

	Endpoints        []catalog.Endpoint
	PlainEndpoints   []PlainEndpoint

	EndpointID          string
	EndpointDescription string
	MatchedEndpoint     *catalog.Endpoint

	EffectiveParameters []catalog.Parameter

	JSONOutput map[string]any

	Matches []ParameterValue

	InputTokens  uint32
	OutputTokens uint32
}

// ParameterValue is a resolved (name, value) pair produced by the
// field_matching step.
type ParameterValue struct {
	Name  string
	Value string
}

// New creates a fresh Context for one workflow run.
func New(sentence, callerEmail string, client provider.Client, cfg provider.ModelConfig) *Context {
	return &Context{
		Sentence:    sentence,
		CallerEmail: callerEmail,
		Provider:    client,
		ModelConfig: cfg,
	}
}
