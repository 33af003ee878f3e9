package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/provider/estimator"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

// noMatchToken is the literal value the find_endpoint prompt instructs
// the provider to return when no endpoint fits the sentence.
const noMatchToken = "NO_MATCH"

// EndpointMatching asks the provider which of the caller's endpoints
// best fits the sentence, falling back to a case-insensitive substring
// match when the literal response isn't a known id.
type EndpointMatching struct {
	Prompts *prompts.Registry
}

func (s *EndpointMatching) Name() string { return "endpoint_matching" }

func (s *EndpointMatching) Execute(ctx context.Context, wc *workflow.Context) error {
	if len(wc.PlainEndpoints) == 0 {
		return apierr.New(apierr.FailedPrecondition, s.Name(), "endpoints not loaded")
	}

	var actions strings.Builder
	for _, e := range wc.PlainEndpoints {
		actions.WriteString("- ")
		actions.WriteString(e.Text)
		actions.WriteString("\n")
	}

	template, err := s.Prompts.Get(ctx, prompts.FindEndpoint, "v1")
	if err != nil {
		return apierr.Wrap(apierr.Fatal, s.Name(), err)
	}
	prompt := prompts.Render(template, map[string]string{
		"input_sentence": wc.Sentence,
		"actions_list":   actions.String(),
	})

	completion, err := wc.Provider.Generate(ctx, prompt, wc.ModelConfig)
	if err != nil {
		return apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	countTokens(wc, prompt, completion.Content)

	answer := strings.TrimSpace(completion.Content)
	if strings.EqualFold(answer, noMatchToken) {
		return apierr.NewNoSuitableEndpoint(s.Name(), "provider returned NO_MATCH")
	}

	endpoint, ok := matchByID(wc.Endpoints, answer)
	if !ok {
		endpoint, ok = matchBySubstring(wc.Endpoints, answer)
	}
	if !ok {
		return apierr.NewNoSuitableEndpoint(s.Name(), fmt.Sprintf("response %q did not match any known id", answer))
	}

	wc.EndpointID = endpoint.ID
	wc.EndpointDescription = endpoint.Description
	ep := endpoint
	wc.MatchedEndpoint = &ep
	return nil
}

func matchByID(endpoints []catalog.Endpoint, answer string) (catalog.Endpoint, bool) {
	for _, e := range endpoints {
		if strings.EqualFold(e.ID, answer) {
			return e, true
		}
	}
	return catalog.Endpoint{}, false
}

func matchBySubstring(endpoints []catalog.Endpoint, answer string) (catalog.Endpoint, bool) {
	lowerAnswer := strings.ToLower(answer)
	for _, e := range endpoints {
		lowerID := strings.ToLower(e.ID)
		if strings.Contains(lowerAnswer, lowerID) || strings.Contains(lowerID, lowerAnswer) {
			return e, true
		}
	}
	return catalog.Endpoint{}, false
}

// countTokens estimates and accumulates token usage for one step's LLM
// round-trip. It is a coarse approximation, acknowledged to
// double-count against the provider gateway's own usage reporting.
func countTokens(wc *workflow.Context, prompt, response string) {
	wc.InputTokens += estimator.Estimate(prompt, string(wc.Provider.Kind()))
	wc.OutputTokens += estimator.Estimate(response, string(wc.Provider.Kind()))
}
