package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

// FieldMatching reconciles the extracted JSON with the effective
// parameter list: direct name/alias matches first, then a semantic LLM
// pass for any required parameter still unfilled. Direct matches are
// never overwritten by the semantic pass.
type FieldMatching struct {
	Prompts *prompts.Registry
}

func (s *FieldMatching) Name() string { return "field_matching" }

func (s *FieldMatching) Execute(ctx context.Context, wc *workflow.Context) error {
	if wc.JSONOutput == nil {
		return apierr.New(apierr.FailedPrecondition, s.Name(), "json output not available")
	}

	resolved := make(map[string]string, len(wc.EffectiveParameters))
	for _, p := range wc.EffectiveParameters {
		if v, ok := directValue(wc.JSONOutput, p.Name); ok {
			resolved[p.Name] = v
			continue
		}
		for _, alt := range p.Alternatives {
			if v, ok := directValue(wc.JSONOutput, alt); ok {
				resolved[p.Name] = v
				break
			}
		}
	}

	if anyRequiredUnfilled(wc.EffectiveParameters, resolved) {
		semantic, err := s.matchSemantic(ctx, wc)
		if err != nil {
			return err
		}
		for name, value := range semantic {
			if _, already := resolved[name]; !already {
				resolved[name] = value
			}
		}
	}

	matches := make([]workflow.ParameterValue, 0, len(resolved))
	for name, value := range resolved {
		matches = append(matches, workflow.ParameterValue{Name: name, Value: value})
	}
	wc.Matches = matches
	return nil
}

func directValue(fields map[string]any, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	value, ok := stringify(raw)
	if !ok || strings.TrimSpace(value) == "" || value == "null" {
		return "", false
	}
	return value, true
}

func anyRequiredUnfilled(params []catalog.Parameter, resolved map[string]string) bool {
	for _, p := range params {
		if !p.Required {
			continue
		}
		if v, ok := resolved[p.Name]; !ok || strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

func (s *FieldMatching) matchSemantic(ctx context.Context, wc *workflow.Context) (map[string]string, error) {
	var inputFields []string
	for key, value := range wc.JSONOutput {
		str, _ := stringify(value)
		inputFields = append(inputFields, fmt.Sprintf("%s: %s", key, str))
	}

	var paramLines []string
	for _, p := range wc.EffectiveParameters {
		paramLines = append(paramLines, fmt.Sprintf("%s: %s", p.Name, p.Description))
	}

	template, err := s.Prompts.Get(ctx, prompts.MatchFields, "v1")
	if err != nil {
		return nil, apierr.Wrap(apierr.Fatal, s.Name(), err)
	}
	prompt := prompts.Render(template, map[string]string{
		"input_fields": strings.Join(inputFields, ", "),
		"parameters":   strings.Join(paramLines, "\n"),
	})

	completion, err := wc.Provider.Generate(ctx, prompt, wc.ModelConfig)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	countTokens(wc, prompt, completion.Content)

	parsed, err := sanitizeJSON(completion.Content)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, s.Name(), err)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, apierr.New(apierr.Transient, s.Name(), "semantic match response is not a JSON object")
	}

	known := make(map[string]bool, len(wc.EffectiveParameters))
	for _, p := range wc.EffectiveParameters {
		known[p.Name] = true
	}

	result := make(map[string]string)
	for name, raw := range obj {
		if !known[name] {
			continue
		}
		if v, ok := stringify(raw); ok && strings.TrimSpace(v) != "" && v != "null" {
			result[name] = v
		}
	}
	return result, nil
}
