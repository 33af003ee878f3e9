package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

// JSONGeneration extracts a flat object of parameter values from the
// sentence. When an endpoint has already been selected it uses the
// endpoint-constrained (v2) prompt and keeps only known parameter
// names; otherwise it falls back to the general (v1) prompt, whose
// {endpoints:[{fields:{...}}]} envelope is unwrapped to the same flat
// shape so field_matching never needs to know which mode produced it.
type JSONGeneration struct {
	Prompts *prompts.Registry
}

func (s *JSONGeneration) Name() string { return "json_generation" }

func (s *JSONGeneration) Execute(ctx context.Context, wc *workflow.Context) error {
	if wc.MatchedEndpoint != nil {
		return s.runConstrained(ctx, wc)
	}
	return s.runGeneral(ctx, wc)
}

func (s *JSONGeneration) runConstrained(ctx context.Context, wc *workflow.Context) error {
	var required, optional []string
	for _, p := range wc.EffectiveParameters {
		line := fmt.Sprintf("%s: %s", p.Name, p.Description)
		if p.Required {
			required = append(required, line)
		} else {
			optional = append(optional, line)
		}
	}

	template, err := s.Prompts.Get(ctx, prompts.SentenceToJSONEndpoint, "v2")
	if err != nil {
		return apierr.Wrap(apierr.Fatal, s.Name(), err)
	}
	prompt := prompts.Render(template, map[string]string{
		"sentence":               wc.Sentence,
		"endpoint_description":   wc.EndpointDescription,
		"required_parameters":    joinOrNone(required),
		"optional_parameters":    joinOrNone(optional),
	})

	completion, err := wc.Provider.Generate(ctx, prompt, wc.ModelConfig)
	if err != nil {
		return apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	countTokens(wc, prompt, completion.Content)

	parsed, err := sanitizeJSON(completion.Content)
	if err != nil {
		return apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return apierr.New(apierr.Transient, s.Name(), "expected a JSON object of parameter values")
	}

	known := make(map[string]bool, len(wc.EffectiveParameters))
	for _, p := range wc.EffectiveParameters {
		known[p.Name] = true
	}

	filtered := make(map[string]any, len(obj))
	for key, value := range obj {
		if !known[key] {
			continue
		}
		filtered[key] = value
	}
	wc.JSONOutput = filtered
	return nil
}

func (s *JSONGeneration) runGeneral(ctx context.Context, wc *workflow.Context) error {
	template, err := s.Prompts.Get(ctx, prompts.SentenceToJSON, "v1")
	if err != nil {
		return apierr.Wrap(apierr.Fatal, s.Name(), err)
	}
	prompt := prompts.Render(template, map[string]string{"sentence": wc.Sentence})

	completion, err := wc.Provider.Generate(ctx, prompt, wc.ModelConfig)
	if err != nil {
		return apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	countTokens(wc, prompt, completion.Content)

	parsed, err := sanitizeJSON(completion.Content)
	if err != nil {
		return apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return apierr.New(apierr.Transient, s.Name(), "invalid JSON structure: expected an object")
	}
	rawEndpoints, ok := obj["endpoints"].([]any)
	if !ok || len(rawEndpoints) == 0 {
		return apierr.New(apierr.Transient, s.Name(), "invalid JSON structure: missing or empty 'endpoints' array")
	}
	first, ok := rawEndpoints[0].(map[string]any)
	if !ok {
		return apierr.New(apierr.Transient, s.Name(), "invalid JSON structure: 'endpoints[0]' is not an object")
	}
	fields, ok := first["fields"].(map[string]any)
	if !ok {
		return apierr.New(apierr.Transient, s.Name(), "invalid JSON structure: 'endpoints[0].fields' is not an object")
	}

	wc.JSONOutput = fields
	return nil
}

func joinOrNone(lines []string) string {
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}
