// Package orchestrator implements the analysis pipeline's single entry
// point: a strict, early-returning priority chain over the progressive
// store, the intent classifier, and the actionable workflow engine.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/conversation"
	"github.com/bennekrouf/semantic-api0/internal/intent"
	"github.com/bennekrouf/semantic-api0/internal/matching"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/provider/estimator"
	"github.com/bennekrouf/semantic-api0/internal/store"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
	"github.com/bennekrouf/semantic-api0/internal/workflow/steps"
)

// UsageInfo is the per-call token accounting surfaced to callers.
type UsageInfo struct {
	InputTokens  uint32
	OutputTokens uint32
	TotalTokens  uint32
	Model        string
	Estimated    bool
}

// EnhancedAnalysisResult is the orchestrator's output record: an
// endpoint's flat fields, the resolved parameters, the raw extracted
// JSON, the completion report, and usage/intent bookkeeping.
type EnhancedAnalysisResult struct {
	EndpointID    string
	EndpointName  string
	Description   string
	Verb          string
	Base          string
	Path          string
	EssentialPath string
	APIGroupID    string
	APIGroupName  string

	Parameters   []matching.ParameterMatch
	RawJSON      map[string]any
	MatchingInfo matching.MatchingInfo
	UserPrompt   string

	ConversationID string
	Usage          UsageInfo
	Intent         intent.Intent
}

// Config bundles the orchestrator's tunables, read from the YAML
// analysis and steps sections.
type Config struct {
	RetryAttempts     int
	FallbackToGeneral bool

	// StepRetries overrides a workflow step's retry budget by name. A
	// step not present here falls back to defaultStepRetries. Populated
	// from the YAML steps section by the caller (see internal/config).
	StepRetries map[string]workflow.RetryPolicy
}

// defaultStepRetries carries over the original workflow configuration's
// differentiated per-step retry budgets: enhanced_configuration_loading
// and json_generation tolerate more provider flakiness,
// path_parameter_extraction runs once since it's a pure local
// computation, and the rest fall in between.
func defaultStepRetries() map[string]workflow.RetryPolicy {
	return map[string]workflow.RetryPolicy{
		"enhanced_configuration_loading": {MaxAttempts: 3, Delay: 1000 * time.Millisecond},
		"endpoint_matching":              {MaxAttempts: 2, Delay: 500 * time.Millisecond},
		"path_parameter_extraction":      {MaxAttempts: 1, Delay: 0},
		"json_generation":                {MaxAttempts: 3, Delay: 1000 * time.Millisecond},
		"field_matching":                 {MaxAttempts: 2, Delay: 500 * time.Millisecond},
	}
}

// Orchestrator wires together the catalog client, provider gateway,
// prompt registry, progressive store, and workflow engine into the
// analyze(...) entry point.
type Orchestrator struct {
	Catalog        *catalog.Client
	CatalogAddress string
	Client         provider.Client
	ModelConfig    provider.ModelConfig
	Prompts        *prompts.Registry
	Store          store.Store
	Engine         *workflow.Engine
	Config         Config
	Conversations  *conversation.Manager
}

// New builds an Orchestrator and registers the five actionable workflow
// steps with engine.
func New(cat *catalog.Client, catalogAddress string, client provider.Client, modelCfg provider.ModelConfig, reg *prompts.Registry, st store.Store, cfg Config) (*Orchestrator, error) {
	engine := workflow.NewEngine()
	stepList := []workflow.Step{
		&steps.EnhancedConfigLoading{Catalog: cat, CatalogAddress: catalogAddress},
		&steps.EndpointMatching{Prompts: reg},
		&steps.PathParameterExtraction{},
		&steps.JSONGeneration{Prompts: reg},
		&steps.FieldMatching{Prompts: reg},
	}
	for _, step := range stepList {
		if err := engine.Register(step); err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	return &Orchestrator{
		Catalog:        cat,
		CatalogAddress: catalogAddress,
		Client:         client,
		ModelConfig:    modelCfg,
		Prompts:        reg,
		Store:          st,
		Engine:         engine,
		Config:         cfg,
		Conversations:  conversation.New(),
	}, nil
}

// stepConfigs declares the five actionable steps in order, with each
// step's own retry budget: o.Config.StepRetries if set, else the
// original workflow's differentiated defaults.
func (o *Orchestrator) stepConfigs() []workflow.StepConfig {
	names := []string{
		"enhanced_configuration_loading",
		"endpoint_matching",
		"path_parameter_extraction",
		"json_generation",
		"field_matching",
	}
	defaults := defaultStepRetries()
	configs := make([]workflow.StepConfig, len(names))
	for i, name := range names {
		retry, ok := o.Config.StepRetries[name]
		if !ok {
			retry = defaults[name]
		}
		configs[i] = workflow.StepConfig{Name: name, Enabled: true, Retry: retry}
	}
	return configs
}

// Analyze runs the strict priority chain: progressive-followup gate,
// then the normal intent-branching flow, persisting partial actionable
// results as a side effect.
func (o *Orchestrator) Analyze(ctx context.Context, sentence, callerEmail, conversationID string) (EnhancedAnalysisResult, error) {
	result, err := o.analyze(ctx, sentence, callerEmail, conversationID)
	if err == nil && conversationID != "" {
		o.Conversations.Touch(conversationID, callerEmail, result.EndpointID, result.Intent.String())
	}
	return result, err
}

func (o *Orchestrator) analyze(ctx context.Context, sentence, callerEmail, conversationID string) (EnhancedAnalysisResult, error) {
	if conversationID != "" {
		result, handled, err := o.progressiveFollowup(ctx, sentence, callerEmail, conversationID)
		if handled {
			return result, err
		}
	}
	return o.normalFlow(ctx, sentence, callerEmail, conversationID)
}

// progressiveFollowup implements step 1: if handled is false, the
// caller should fall through to the normal flow.
func (o *Orchestrator) progressiveFollowup(ctx context.Context, sentence, callerEmail, conversationID string) (EnhancedAnalysisResult, bool, error) {
	row, err := o.Store.GetIncomplete(ctx, conversationID)
	if err != nil {
		return EnhancedAnalysisResult{}, false, nil
	}

	endpoints, err := o.Catalog.Fetch(ctx, o.CatalogAddress, callerEmail)
	if err != nil {
		return EnhancedAnalysisResult{}, true, err
	}
	endpoint, ok := findEndpoint(endpoints, row.EndpointID)
	if !ok {
		return EnhancedAnalysisResult{}, false, nil
	}

	extracted, usage, err := o.extractFollowupParameters(ctx, sentence, endpoint)
	if err != nil {
		return EnhancedAnalysisResult{}, true, err
	}
	if len(extracted) == 0 {
		return EnhancedAnalysisResult{}, false, nil
	}

	newParams := make([]store.ParameterValue, 0, len(extracted))
	for name, value := range extracted {
		newParams = append(newParams, store.ParameterValue{Name: name, Value: value})
	}
	if err := o.Store.Update(ctx, conversationID, row.EndpointID, newParams); err != nil {
		return EnhancedAnalysisResult{}, true, apierr.Wrap(apierr.Transient, "orchestrator.progressiveFollowup", err)
	}

	requiredNames := requiredParameterNames(endpoint.Parameters)
	check, err := o.Store.CheckCompletion(ctx, conversationID, row.EndpointID, requiredNames, endpoint.Parameters)
	if err != nil {
		return EnhancedAnalysisResult{}, true, apierr.Wrap(apierr.Transient, "orchestrator.progressiveFollowup", err)
	}

	matches := matchesFromStore(check.MatchedParameters, endpoint.Parameters)
	info := matching.Compute(matches, endpoint.Parameters)

	result := EnhancedAnalysisResult{
		EndpointID:     endpoint.ID,
		EndpointName:   endpoint.Name,
		Description:    endpoint.Description,
		Verb:           endpoint.Verb,
		Base:           endpoint.Base,
		Path:           endpoint.Path,
		EssentialPath:  endpoint.EssentialPath,
		APIGroupID:     endpoint.APIGroupID,
		APIGroupName:   endpoint.APIGroupName,
		Parameters:     matches,
		RawJSON:        rawJSONFromMatches(check.MatchedParameters),
		MatchingInfo:   info,
		ConversationID: conversationID,
		Usage:          usage,
		Intent:         intent.Actionable,
	}

	if check.IsComplete {
		if err := o.Store.Complete(ctx, conversationID, row.EndpointID); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "failed to delete completed progressive match"})
		}
		return result, true, nil
	}

	result.UserPrompt = matching.UserPrompt(info, endpoint.Name)
	return result, true, nil
}

// normalFlow implements step 2: fetch the catalog, classify intent, and
// branch into help/general/actionable handling.
func (o *Orchestrator) normalFlow(ctx context.Context, sentence, callerEmail, conversationID string) (EnhancedAnalysisResult, error) {
	endpoints, err := o.Catalog.Fetch(ctx, o.CatalogAddress, callerEmail)
	if err != nil {
		return EnhancedAnalysisResult{}, err
	}

	classified, err := o.classifyIntent(ctx, sentence, endpoints)
	if err != nil {
		return EnhancedAnalysisResult{}, err
	}

	switch classified {
	case intent.Help:
		return o.helpResult(ctx, sentence, endpoints, conversationID), nil
	case intent.Actionable:
		result, err := o.actionableResult(ctx, sentence, callerEmail, conversationID)
		if err == nil {
			return result, nil
		}
		if !apierr.IsNoSuitableEndpoint(err) {
			return EnhancedAnalysisResult{}, err
		}
		return o.retryActionable(ctx, sentence, callerEmail, conversationID, err)
	default:
		return o.generalResult(ctx, sentence, conversationID), nil
	}
}

func (o *Orchestrator) retryActionable(ctx context.Context, sentence, callerEmail, conversationID string, lastErr error) (EnhancedAnalysisResult, error) {
	attempts := o.Config.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 1; attempt < attempts; attempt++ {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return EnhancedAnalysisResult{}, ctx.Err()
		}
		result, err := o.actionableResult(ctx, sentence, callerEmail, conversationID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !apierr.IsNoSuitableEndpoint(err) {
			return EnhancedAnalysisResult{}, err
		}
	}

	if o.Config.FallbackToGeneral {
		return o.generalResult(ctx, sentence, conversationID), nil
	}
	return EnhancedAnalysisResult{}, lastErr
}

func (o *Orchestrator) classifyIntent(ctx context.Context, sentence string, endpoints []catalog.Endpoint) (intent.Intent, error) {
	var descriptions strings.Builder
	for _, e := range endpoints {
		descriptions.WriteString("- ")
		descriptions.WriteString(e.Description)
		descriptions.WriteString("\n")
	}

	template, err := o.Prompts.Get(ctx, prompts.IntentClassification, "")
	if err != nil {
		return intent.General, apierr.Wrap(apierr.Fatal, "orchestrator.classifyIntent", err)
	}
	prompt := prompts.Render(template, map[string]string{
		"sentence":             sentence,
		"endpoint_descriptions": descriptions.String(),
	})

	classified, err := intent.Classify(ctx, o.Client, o.ModelConfig, prompt, sentence)
	if err != nil {
		return intent.General, apierr.Wrap(apierr.Transient, "orchestrator.classifyIntent", err)
	}
	return classified, nil
}

func (o *Orchestrator) helpResult(ctx context.Context, sentence string, endpoints []catalog.Endpoint, conversationID string) EnhancedAnalysisResult {
	language := estimator.DetectLanguage(sentence)

	var text string
	usage := UsageInfo{Model: string(o.Client.Kind()), Estimated: true, InputTokens: 30, OutputTokens: 40, TotalTokens: 70}
	if language == "en" {
		text = defaultCapabilitiesListing(endpoints)
	} else {
		template, err := o.Prompts.Get(ctx, prompts.HelpResponse, "")
		if err == nil {
			prompt := prompts.Render(template, map[string]string{
				"sentence":  sentence,
				"language":  language,
				"listing":   defaultCapabilitiesListing(endpoints),
			})
			completion, genErr := o.Client.Generate(ctx, prompt, o.ModelConfig)
			if genErr == nil {
				text = completion.Content
				usage = UsageInfo{
					Model:        string(o.Client.Kind()),
					InputTokens:  estimator.Estimate(prompt, string(o.Client.Kind())),
					OutputTokens: estimator.Estimate(text, string(o.Client.Kind())),
				}
				usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			}
		}
		if text == "" {
			text = defaultCapabilitiesListing(endpoints)
		}
	}

	info := matching.Compute(nil, nil)
	return EnhancedAnalysisResult{
		EndpointID:     "help_capabilities",
		EndpointName:   "Help",
		Description:    "Lists the capabilities available to the caller",
		RawJSON:        map[string]any{"type": "help_request", "capabilities_count": len(endpoints), "response": text},
		MatchingInfo:   info,
		ConversationID: conversationID,
		Usage:          usage,
		Intent:         intent.Help,
	}
}

func (o *Orchestrator) generalResult(ctx context.Context, sentence, conversationID string) EnhancedAnalysisResult {
	completion, err := o.Client.Generate(ctx, sentence, o.ModelConfig)
	text := ""
	usage := UsageInfo{Model: string(o.Client.Kind()), Estimated: true, InputTokens: 30, OutputTokens: 50, TotalTokens: 80}
	if err == nil {
		text = completion.Content
		usage = UsageInfo{
			Model:        string(o.Client.Kind()),
			InputTokens:  estimator.Estimate(sentence, string(o.Client.Kind())),
			OutputTokens: estimator.Estimate(text, string(o.Client.Kind())),
		}
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	} else {
		log.Error(ctx, err, log.KV{K: "msg", V: "general conversation call failed, returning empty response"})
	}

	info := matching.Compute(nil, nil)
	return EnhancedAnalysisResult{
		EndpointID:     "general_conversation_fallback",
		EndpointName:   "General conversation",
		RawJSON:        map[string]any{"type": "general_response", "response": text},
		MatchingInfo:   info,
		ConversationID: conversationID,
		Usage:          usage,
		Intent:         intent.General,
	}
}

func (o *Orchestrator) actionableResult(ctx context.Context, sentence, callerEmail, conversationID string) (EnhancedAnalysisResult, error) {
	wc := workflow.New(sentence, callerEmail, o.Client, o.ModelConfig)
	if err := o.Engine.Run(ctx, wc, o.stepConfigs()); err != nil {
		return EnhancedAnalysisResult{}, err
	}

	params := wc.EffectiveParameters
	matches := make([]matching.ParameterMatch, 0, len(wc.Matches))
	resolved := make(map[string]string, len(wc.Matches))
	for _, m := range wc.Matches {
		resolved[m.Name] = m.Value
	}
	for _, p := range params {
		value, ok := resolved[p.Name]
		matches = append(matches, matching.ParameterMatch{Name: p.Name, Description: p.Description, Value: value, HasValue: ok})
	}
	info := matching.Compute(matches, params)

	endpointName := wc.EndpointID
	if wc.MatchedEndpoint != nil {
		endpointName = wc.MatchedEndpoint.Name
	}

	result := EnhancedAnalysisResult{
		EndpointID:     wc.EndpointID,
		Description:    wc.EndpointDescription,
		Parameters:     matches,
		RawJSON:        wc.JSONOutput,
		MatchingInfo:   info,
		UserPrompt:     matching.UserPrompt(info, endpointName),
		ConversationID: conversationID,
		Usage: UsageInfo{
			Model:        string(o.Client.Kind()),
			InputTokens:  wc.InputTokens,
			OutputTokens: wc.OutputTokens,
			TotalTokens:  wc.InputTokens + wc.OutputTokens,
			Estimated:    true,
		},
		Intent: intent.Actionable,
	}
	if wc.MatchedEndpoint != nil {
		e := wc.MatchedEndpoint
		result.EndpointName = e.Name
		result.Verb = e.Verb
		result.Base = e.Base
		result.Path = e.Path
		result.EssentialPath = e.EssentialPath
		result.APIGroupID = e.APIGroupID
		result.APIGroupName = e.APIGroupName
	}

	if info.CompletionPercentage < 100 && conversationID != "" && wc.MatchedEndpoint != nil {
		o.savePartial(ctx, conversationID, wc.MatchedEndpoint.ID, matches)
	}

	return result, nil
}

// savePartial persists the resolved parameters of an incomplete
// actionable result so the next turn can resume. Store failures here are
// logged and swallowed: they must not fail an otherwise successful call.
func (o *Orchestrator) savePartial(ctx context.Context, conversationID, endpointID string, matches []matching.ParameterMatch) {
	values := make([]store.ParameterValue, 0, len(matches))
	for _, m := range matches {
		if !m.Filled() {
			continue
		}
		values = append(values, store.ParameterValue{Name: m.Name, Value: m.Value, Description: m.Description})
	}
	if len(values) == 0 {
		return
	}
	if err := o.Store.Update(ctx, conversationID, endpointID, values); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "failed to persist partial actionable result"})
	}
}

// extractFollowupParameters asks the provider to map the follow-up
// sentence's content onto the endpoint's declared parameter names, per
// the extract_followup_parameters_mapping prompt.
func (o *Orchestrator) extractFollowupParameters(ctx context.Context, sentence string, endpoint catalog.Endpoint) (map[string]string, UsageInfo, error) {
	var paramLines []string
	for _, p := range endpoint.Parameters {
		paramLines = append(paramLines, fmt.Sprintf("%s: %s", p.Name, p.Description))
	}

	template, err := o.Prompts.Get(ctx, prompts.ExtractFollowupParametersMap, "")
	if err != nil {
		return nil, UsageInfo{}, apierr.Wrap(apierr.Fatal, "orchestrator.extractFollowupParameters", err)
	}
	prompt := prompts.Render(template, map[string]string{
		"sentence":   sentence,
		"parameters": strings.Join(paramLines, "\n"),
	})

	completion, err := o.Client.Generate(ctx, prompt, o.ModelConfig)
	if err != nil {
		return nil, UsageInfo{}, apierr.Wrap(apierr.Transient, "orchestrator.extractFollowupParameters", err)
	}

	usage := UsageInfo{
		Model:        string(o.Client.Kind()),
		InputTokens:  estimator.Estimate(prompt, string(o.Client.Kind())),
		OutputTokens: estimator.Estimate(completion.Content, string(o.Client.Kind())),
		Estimated:    true,
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	obj, err := extractJSONObject(completion.Content)
	if err != nil {
		return nil, usage, nil
	}

	known := make(map[string]bool, len(endpoint.Parameters))
	for _, p := range endpoint.Parameters {
		known[p.Name] = true
	}

	result := make(map[string]string)
	for name, raw := range obj {
		if !known[name] {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		if strings.TrimSpace(str) == "" || str == "null" {
			continue
		}
		result[name] = str
	}
	return result, usage, nil
}

// extractJSONObject strips a markdown code fence if present and decodes
// the remainder as a JSON object.
func extractJSONObject(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("orchestrator: decode JSON object: %w", err)
	}
	return obj, nil
}

func findEndpoint(endpoints []catalog.Endpoint, id string) (catalog.Endpoint, bool) {
	for _, e := range endpoints {
		if e.ID == id {
			return e, true
		}
	}
	return catalog.Endpoint{}, false
}

func requiredParameterNames(params []catalog.Parameter) []string {
	var names []string
	for _, p := range params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

func matchesFromStore(values []store.ParameterValue, params []catalog.Parameter) []matching.ParameterMatch {
	descByName := make(map[string]string, len(params))
	for _, p := range params {
		descByName[p.Name] = p.Description
	}
	matches := make([]matching.ParameterMatch, 0, len(values))
	for _, v := range values {
		matches = append(matches, matching.ParameterMatch{Name: v.Name, Description: descByName[v.Name], Value: v.Value, HasValue: true})
	}
	return matches
}

func rawJSONFromMatches(values []store.ParameterValue) map[string]any {
	out := make(map[string]any, len(values))
	for _, v := range values {
		out[v.Name] = v.Value
	}
	return out
}

func defaultCapabilitiesListing(endpoints []catalog.Endpoint) string {
	var b strings.Builder
	b.WriteString("Here is what I can help you with:\n")
	for _, e := range endpoints {
		b.WriteString("- ")
		b.WriteString(e.Name)
		if e.Description != "" {
			b.WriteString(": ")
			b.WriteString(e.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
