// Package prompts loads the named, versioned prompt templates used by the
// workflow steps and the intent classifier from a YAML file, grounded on
// the original PromptManager's name -> versions -> default_version shape.
package prompts

import (
	"context"
	"fmt"
	"os"
	"strings"

	"goa.design/clue/log"
	"gopkg.in/yaml.v3"
)

// Names of the templates the workflow and intent classifier look up by.
const (
	IntentClassification         = "intent_classification"
	FindEndpoint                 = "find_endpoint"
	SentenceToJSON                = "sentence_to_json"
	SentenceToJSONEndpoint        = "sentence_to_json_endpoint"
	MatchFields                   = "match_fields"
	ExtractFollowupParametersMap  = "extract_followup_parameters_mapping"
	LanguageDetection             = "language_detection"
	HelpResponse                  = "help_response"
)

type version struct {
	Template string `yaml:"template"`
}

type entry struct {
	Versions       map[string]version `yaml:"versions"`
	DefaultVersion string              `yaml:"default_version"`
}

type document struct {
	Prompts map[string]entry `yaml:"prompts"`
}

// Registry resolves a (name, version) pair to a template string and
// performs the {placeholder} substitutions the templates expect.
type Registry struct {
	doc document
}

// Load reads and parses the YAML prompt file at path.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("prompts: parse %s: %w", path, err)
	}
	return &Registry{doc: doc}, nil
}

// Get returns the template registered under name. An empty version
// selects the entry's default_version. A version that does not exist
// falls back to the default version with a warning, matching the
// original manager's lookup rule.
func (r *Registry) Get(ctx context.Context, name, wantVersion string) (string, error) {
	prompt, ok := r.doc.Prompts[name]
	if !ok {
		return "", fmt.Errorf("prompts: no prompt named %q", name)
	}

	versionKey := wantVersion
	if versionKey == "" {
		versionKey = prompt.DefaultVersion
	}

	if v, ok := prompt.Versions[versionKey]; ok {
		return v.Template, nil
	}

	log.Warn(ctx, log.KV{K: "msg", V: "prompt version not found, falling back to default"},
		log.KV{K: "name", V: name}, log.KV{K: "version", V: versionKey}, log.KV{K: "default_version", V: prompt.DefaultVersion})

	v, ok := prompt.Versions[prompt.DefaultVersion]
	if !ok {
		return "", fmt.Errorf("prompts: %q has no default version %q", name, prompt.DefaultVersion)
	}
	return v.Template, nil
}

// Render substitutes every {key} placeholder in template with its value
// from fields. Unknown placeholders are left untouched.
func Render(template string, fields map[string]string) string {
	out := template
	for key, value := range fields {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
