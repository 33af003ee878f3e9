package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/intent"
	"github.com/bennekrouf/semantic-api0/internal/matching"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/store"
	"github.com/bennekrouf/semantic-api0/internal/store/memory"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

const promptFixture = `
prompts:
  intent_classification:
    default_version: v1
    versions:
      v1:
        template: "{sentence} {endpoint_descriptions}"
  find_endpoint:
    default_version: v1
    versions:
      v1:
        template: "{input_sentence} {actions_list}"
  sentence_to_json_endpoint:
    default_version: v2
    versions:
      v2:
        template: "{sentence} {endpoint_description} {required_parameters} {optional_parameters}"
  sentence_to_json:
    default_version: v1
    versions:
      v1:
        template: "{sentence}"
  match_fields:
    default_version: v1
    versions:
      v1:
        template: "{input_fields} {parameters}"
  extract_followup_parameters_mapping:
    default_version: v1
    versions:
      v1:
        template: "{sentence} {parameters}"
`

func loadFixturePrompts(t *testing.T) *prompts.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(promptFixture), 0o644))
	reg, err := prompts.Load(path)
	require.NoError(t, err)
	return reg
}

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

type fakeSource struct {
	groups []catalog.Group
}

func (f *fakeSource) Stream(context.Context, string, string) ([]catalog.Group, error) {
	return f.groups, nil
}
func (f *fakeSource) Health(context.Context, string) error { return nil }

func sendEmailGroups() []catalog.Group {
	return []catalog.Group{
		{
			ID:   "g1",
			Name: "Email",
			Endpoints: []catalog.RawEndpoint{
				{
					ID:          "send_email",
					Name:        "Send Email",
					Text:        "send an email",
					Description: "Send an email message",
					Verb:        "POST",
					Base:        "https://api.example.com",
					Path:        "/email/send",
					Parameters: []catalog.Parameter{
						{Name: "to", Description: "recipient email address", Required: true},
						{Name: "subject", Description: "email subject", Required: true},
						{Name: "body", Description: "email body", Required: false},
					},
				},
			},
		},
	}
}

// fastStepRetries disables the engine's own per-step retries so tests
// can control exactly how many scripted responses one actionableResult
// call consumes, without real sleeps. Differentiated per-step defaults
// are covered separately by TestStepConfigsUsesDifferentiatedDefaults.
func fastStepRetries() map[string]workflow.RetryPolicy {
	fast := workflow.RetryPolicy{MaxAttempts: 1}
	return map[string]workflow.RetryPolicy{
		"enhanced_configuration_loading": fast,
		"endpoint_matching":              fast,
		"path_parameter_extraction":      fast,
		"json_generation":                fast,
		"field_matching":                 fast,
	}
}

func newOrchestrator(t *testing.T, client *scriptedClient, st store.Store, retryAttempts int) *Orchestrator {
	t.Helper()
	cat := catalog.New(&fakeSource{groups: sendEmailGroups()})
	o, err := New(cat, "catalog:1234", client, provider.ModelConfig{}, loadFixturePrompts(t), st, Config{
		RetryAttempts:     retryAttempts,
		FallbackToGeneral: true,
		StepRetries:       fastStepRetries(),
	})
	require.NoError(t, err)
	return o
}

func TestAnalyzeActionableFullParametersIsComplete(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"ACTIONABLE",
		"send_email",
		`{"to":"john@example.com","subject":"Meeting Tomorrow","body":"we need to reschedule"}`,
	}}
	o := newOrchestrator(t, client, memory.New(), 3)

	result, err := o.Analyze(context.Background(), "Send email to john@example.com with subject 'Meeting Tomorrow' and tell him we need to reschedule", "a@b.com", "conv-1")
	require.NoError(t, err)

	assert.Equal(t, "send_email", result.EndpointID)
	assert.Equal(t, matching.Complete, result.MatchingInfo.Status)
	assert.Equal(t, 100, result.MatchingInfo.CompletionPercentage)
	assert.Empty(t, result.UserPrompt)
	assert.Equal(t, intent.Actionable, result.Intent)
}

func TestAnalyzeActionableMissingRequiredIsPartialAndPersists(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"ACTIONABLE",
		"send_email",
		`{"subject":"budget"}`,
		`{}`,
	}}
	st := memory.New()
	o := newOrchestrator(t, client, st, 3)

	result, err := o.Analyze(context.Background(), "Send an email about the budget", "a@b.com", "conv-2")
	require.NoError(t, err)

	assert.Equal(t, matching.Partial, result.MatchingInfo.Status)
	assert.NotEmpty(t, result.UserPrompt)

	row, err := st.Get(context.Background(), "conv-2", "send_email")
	require.NoError(t, err)
	assert.Len(t, row.Parameters, 1)
	assert.Equal(t, "subject", row.Parameters[0].Name)
}

func TestAnalyzeProgressiveResumeCompletesAndClearsStore(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.Update(context.Background(), "conv-3", "send_email", []store.ParameterValue{{Name: "subject", Value: "budget"}}))

	client := &scriptedClient{responses: []string{`{"to":"to@example.com"}`}}
	o := newOrchestrator(t, client, st, 3)

	result, err := o.Analyze(context.Background(), "to@example.com", "a@b.com", "conv-3")
	require.NoError(t, err)

	assert.Equal(t, matching.Complete, result.MatchingInfo.Status)
	assert.Empty(t, result.UserPrompt)

	_, err = st.Get(context.Background(), "conv-3", "send_email")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalyzeHelpIntentReturnsCapabilitiesListing(t *testing.T) {
	client := &scriptedClient{responses: []string{"HELP"}}
	o := newOrchestrator(t, client, memory.New(), 3)

	result, err := o.Analyze(context.Background(), "what can i do with this app?", "a@b.com", "conv-4")
	require.NoError(t, err)

	assert.Equal(t, "help_capabilities", result.EndpointID)
	assert.Equal(t, intent.Help, result.Intent)
	assert.Equal(t, "help_request", result.RawJSON["type"])
	assert.Equal(t, 1, result.RawJSON["capabilities_count"])
}

func TestAnalyzeTouchesConversationManagerOnSuccess(t *testing.T) {
	client := &scriptedClient{responses: []string{"HELP"}}
	o := newOrchestrator(t, client, memory.New(), 3)

	_, err := o.Analyze(context.Background(), "what can i do?", "a@b.com", "conv-6")
	require.NoError(t, err)

	row, ok := o.Conversations.Get("conv-6")
	require.True(t, ok)
	assert.Equal(t, "a@b.com", row.CallerEmail)
	assert.Equal(t, "help_capabilities", row.LastEndpointID)
	assert.Equal(t, 1, row.TurnCount)
}

func TestAnalyzeActionableExhaustsRetriesThenFallsBackToGeneral(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"ACTIONABLE",
		"NO_MATCH",
		"NO_MATCH",
		"I'm not sure what endpoint that maps to, but happy to chat.",
	}}
	o := newOrchestrator(t, client, memory.New(), 2)

	result, err := o.Analyze(context.Background(), "do something vague", "a@b.com", "conv-5")
	require.NoError(t, err)

	assert.Equal(t, "general_conversation_fallback", result.EndpointID)
	assert.Equal(t, intent.General, result.Intent)
	assert.Equal(t, matching.Complete, result.MatchingInfo.Status)
}

// TestAnalyzeActionableTransientStepFailurePropagatesWithoutFallback
// guards the narrow "no suitable endpoint" gate: a json_generation
// failure is classified Transient too, but it is not the "no suitable
// endpoint" class, so it must propagate directly instead of triggering
// the actionable-retry-then-fallback-to-general-conversation path.
func TestAnalyzeActionableTransientStepFailurePropagatesWithoutFallback(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"ACTIONABLE",
		"send_email",
		"this is not JSON at all",
	}}
	o := newOrchestrator(t, client, memory.New(), 3)

	_, err := o.Analyze(context.Background(), "send an email", "a@b.com", "conv-7")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.Transient))
	assert.False(t, apierr.IsNoSuitableEndpoint(err))
}

// TestStepConfigsUsesDifferentiatedDefaults checks that an Orchestrator
// built without an explicit StepRetries override sources the original
// workflow's differentiated per-step retry budgets, not a flat
// MaxAttempts of 1 for every step.
func TestStepConfigsUsesDifferentiatedDefaults(t *testing.T) {
	cat := catalog.New(&fakeSource{groups: sendEmailGroups()})
	o, err := New(cat, "catalog:1234", &scriptedClient{}, provider.ModelConfig{}, loadFixturePrompts(t), memory.New(), Config{RetryAttempts: 1})
	require.NoError(t, err)

	configs := o.stepConfigs()
	byName := make(map[string]workflow.StepConfig, len(configs))
	for _, c := range configs {
		byName[c.Name] = c
	}

	assert.Equal(t, workflow.RetryPolicy{MaxAttempts: 3, Delay: time.Second}, byName["enhanced_configuration_loading"].Retry)
	assert.Equal(t, workflow.RetryPolicy{MaxAttempts: 2, Delay: 500 * time.Millisecond}, byName["endpoint_matching"].Retry)
	assert.Equal(t, workflow.RetryPolicy{MaxAttempts: 1, Delay: 0}, byName["path_parameter_extraction"].Retry)
	assert.Equal(t, workflow.RetryPolicy{MaxAttempts: 3, Delay: time.Second}, byName["json_generation"].Retry)
	assert.Equal(t, workflow.RetryPolicy{MaxAttempts: 2, Delay: 500 * time.Millisecond}, byName["field_matching"].Retry)
}

func TestStepConfigsHonorsStepRetriesOverride(t *testing.T) {
	cat := catalog.New(&fakeSource{groups: sendEmailGroups()})
	o, err := New(cat, "catalog:1234", &scriptedClient{}, provider.ModelConfig{}, loadFixturePrompts(t), memory.New(), Config{
		RetryAttempts: 1,
		StepRetries: map[string]workflow.RetryPolicy{
			"endpoint_matching": {MaxAttempts: 5, Delay: 250 * time.Millisecond},
		},
	})
	require.NoError(t, err)

	configs := o.stepConfigs()
	for _, c := range configs {
		if c.Name == "endpoint_matching" {
			assert.Equal(t, workflow.RetryPolicy{MaxAttempts: 5, Delay: 250 * time.Millisecond}, c.Retry)
		}
	}
}
