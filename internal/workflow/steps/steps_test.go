package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Kind() provider.Kind { return provider.Claude }
func (c *scriptedClient) Generate(context.Context, string, provider.ModelConfig) (provider.Completion, error) {
	r := c.responses[c.calls]
	c.calls++
	return provider.Completion{Content: r}, nil
}

const promptFixture = `
prompts:
  find_endpoint:
    default_version: v1
    versions:
      v1:
        template: "{input_sentence}\n{actions_list}"
  sentence_to_json_endpoint:
    default_version: v2
    versions:
      v2:
        template: "{sentence} {endpoint_description} {required_parameters} {optional_parameters}"
  match_fields:
    default_version: v1
    versions:
      v1:
        template: "{input_fields} {parameters}"
`

func loadFixturePrompts(t *testing.T) *prompts.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(promptFixture), 0o644))
	reg, err := prompts.Load(path)
	require.NoError(t, err)
	return reg
}

func sendEmailEndpoint() catalog.Endpoint {
	return catalog.Endpoint{
		ID:          "send_email",
		Text:        "send an email",
		Description: "Send an email message",
		Parameters: []catalog.Parameter{
			{Name: "to", Description: "recipient email address", Required: true, Alternatives: []string{"recipient"}},
			{Name: "subject", Description: "email subject", Required: true},
			{Name: "body", Description: "email body", Required: false},
		},
	}
}

func TestEndpointMatchingDirectID(t *testing.T) {
	client := &scriptedClient{responses: []string{"send_email"}}
	wc := workflow.New("send an email", "a@b.com", client, provider.ModelConfig{})
	wc.Endpoints = []catalog.Endpoint{sendEmailEndpoint()}
	wc.PlainEndpoints = []workflow.PlainEndpoint{{ID: "send_email", Text: "send an email"}}

	step := &EndpointMatching{Prompts: loadFixturePrompts(t)}
	require.NoError(t, step.Execute(context.Background(), wc))
	assert.Equal(t, "send_email", wc.EndpointID)
}

func TestEndpointMatchingSubstringFallback(t *testing.T) {
	client := &scriptedClient{responses: []string{"I think it's the send_email_endpoint operation"}}
	wc := workflow.New("send an email", "a@b.com", client, provider.ModelConfig{})
	wc.Endpoints = []catalog.Endpoint{sendEmailEndpoint()}
	wc.PlainEndpoints = []workflow.PlainEndpoint{{ID: "send_email", Text: "send an email"}}

	step := &EndpointMatching{Prompts: loadFixturePrompts(t)}
	require.NoError(t, step.Execute(context.Background(), wc))
	assert.Equal(t, "send_email", wc.EndpointID)
}

func TestEndpointMatchingNoMatchFails(t *testing.T) {
	client := &scriptedClient{responses: []string{"NO_MATCH"}}
	wc := workflow.New("sentence", "a@b.com", client, provider.ModelConfig{})
	wc.Endpoints = []catalog.Endpoint{sendEmailEndpoint()}
	wc.PlainEndpoints = []workflow.PlainEndpoint{{ID: "send_email"}}

	step := &EndpointMatching{Prompts: loadFixturePrompts(t)}
	assert.Error(t, step.Execute(context.Background(), wc))
}

func TestPathParameterExtractionAddsSyntheticRequired(t *testing.T) {
	ep := sendEmailEndpoint()
	ep.Path = "/users/{user_id}/emails/{email_id}"
	wc := workflow.New("s", "a@b.com", nil, provider.ModelConfig{})
	wc.MatchedEndpoint = &ep

	step := &PathParameterExtraction{}
	require.NoError(t, step.Execute(context.Background(), wc))

	names := make(map[string]bool)
	for _, p := range wc.EffectiveParameters {
		names[p.Name] = true
	}
	assert.True(t, names["user_id"])
	assert.True(t, names["email_id"])
	assert.True(t, names["to"])
}

func TestPathParameterExtractionNoSegmentsIsEmptySynthetic(t *testing.T) {
	ep := sendEmailEndpoint()
	ep.Path = "/email/send"
	wc := workflow.New("s", "a@b.com", nil, provider.ModelConfig{})
	wc.MatchedEndpoint = &ep

	step := &PathParameterExtraction{}
	require.NoError(t, step.Execute(context.Background(), wc))
	assert.Len(t, wc.EffectiveParameters, len(ep.Parameters))
}

func TestFieldMatchingDirectMatchPreferredOverSemantic(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"to": "semantic@example.com", "subject": "from semantic pass"}`}}
	wc := workflow.New("s", "a@b.com", client, provider.ModelConfig{})
	wc.EffectiveParameters = sendEmailEndpoint().Parameters
	wc.JSONOutput = map[string]any{
		"to": "john@example.com",
	}

	step := &FieldMatching{Prompts: loadFixturePrompts(t)}
	require.NoError(t, step.Execute(context.Background(), wc))

	values := matchMap(wc.Matches)
	assert.Equal(t, "john@example.com", values["to"])
	assert.Equal(t, "from semantic pass", values["subject"])
}

func TestFieldMatchingUsesAlternatives(t *testing.T) {
	client := &scriptedClient{responses: []string{`{}`}}
	wc := workflow.New("s", "a@b.com", client, provider.ModelConfig{})
	wc.EffectiveParameters = sendEmailEndpoint().Parameters
	wc.JSONOutput = map[string]any{
		"recipient": "jane@example.com",
		"subject":   "Hi",
	}

	step := &FieldMatching{Prompts: loadFixturePrompts(t)}
	require.NoError(t, step.Execute(context.Background(), wc))

	values := matchMap(wc.Matches)
	assert.Equal(t, "jane@example.com", values["to"])
}

func TestFieldMatchingSkipsSemanticPassWhenAllRequiredFilledDirectly(t *testing.T) {
	client := &scriptedClient{responses: []string{}}
	wc := workflow.New("s", "a@b.com", client, provider.ModelConfig{})
	wc.EffectiveParameters = sendEmailEndpoint().Parameters
	wc.JSONOutput = map[string]any{
		"to":      "john@example.com",
		"subject": "Meeting",
	}

	step := &FieldMatching{Prompts: loadFixturePrompts(t)}
	require.NoError(t, step.Execute(context.Background(), wc))
	assert.Equal(t, 0, client.calls)
}

func matchMap(matches []workflow.ParameterValue) map[string]string {
	out := make(map[string]string, len(matches))
	for _, m := range matches {
		out[m.Name] = m.Value
	}
	return out
}

type failingSource struct{ err error }

func (f *failingSource) Stream(context.Context, string, string) ([]catalog.Group, error) {
	return nil, f.err
}
func (f *failingSource) Health(context.Context, string) error { return nil }

// TestEnhancedConfigLoadingPropagatesFetchErrorUnchanged guards against
// re-wrapping an already-classified catalog error under a new Kind:
// catalog.Fetch classifies a stream failure as Transient, and that
// classification must survive through EnhancedConfigLoading unchanged
// rather than being reported as NotFound.
func TestEnhancedConfigLoadingPropagatesFetchErrorUnchanged(t *testing.T) {
	cat := catalog.New(&failingSource{err: errors.New("stream reset by peer")})
	step := &EnhancedConfigLoading{Catalog: cat, CatalogAddress: "catalog:1234"}

	wc := workflow.New("s", "a@b.com", &scriptedClient{}, provider.ModelConfig{})
	err := step.Execute(context.Background(), wc)

	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.Transient))
	assert.False(t, apierr.Is(err, apierr.NotFound))
}
