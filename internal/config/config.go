// Package config loads the process's YAML configuration file and the
// environment variables that locate it and its companions.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bennekrouf/semantic-api0/internal/provider"
)

// ModelSettings is one pipeline use site's model configuration, keyed in
// Config.Models by use name, e.g. "intent_classification" or "workflow".
type ModelSettings struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ToModelConfig converts the YAML settings to the provider package's
// runtime shape.
func (m ModelSettings) ToModelConfig() provider.ModelConfig {
	return provider.ModelConfig{Model: m.Model, Temperature: m.Temperature, MaxTokens: m.MaxTokens}
}

// Server holds the listen address the façade binds to.
type Server struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// EndpointClient holds where to reach the endpoint catalog service.
type EndpointClient struct {
	DefaultAddress string `yaml:"default_address"`
}

// Analysis holds the orchestrator's retry/fallback tunables.
type Analysis struct {
	RetryAttempts     int  `yaml:"retry_attempts"`
	FallbackToGeneral bool `yaml:"fallback_to_general"`
}

// StepRetry declares one workflow step's retry budget: how many attempts
// it gets and how long to wait between them.
type StepRetry struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMS     int `yaml:"delay_ms"`
}

// Delay converts DelayMS to a time.Duration.
func (r StepRetry) Delay() time.Duration { return time.Duration(r.DelayMS) * time.Millisecond }

// Config is the top-level YAML document.
type Config struct {
	Models         map[string]ModelSettings `yaml:"models"`
	Server         Server                   `yaml:"server"`
	EndpointClient EndpointClient           `yaml:"endpoint_client"`
	Analysis       Analysis                 `yaml:"analysis"`
	Steps          map[string]StepRetry     `yaml:"steps"`
}

const (
	defaultRetryAttempts     = 3
	defaultFallbackToGeneral = true
)

// defaultStepRetries are the per-step retry budgets carried over from the
// original workflow configuration: enhanced_configuration_loading and
// json_generation tolerate more provider flakiness, path_parameter_extraction
// runs once since it's a pure local computation, and the rest fall in
// between.
func defaultStepRetries() map[string]StepRetry {
	return map[string]StepRetry{
		"enhanced_configuration_loading": {MaxAttempts: 3, DelayMS: 1000},
		"endpoint_matching":              {MaxAttempts: 2, DelayMS: 500},
		"path_parameter_extraction":      {MaxAttempts: 1, DelayMS: 0},
		"json_generation":                {MaxAttempts: 3, DelayMS: 1000},
		"field_matching":                 {MaxAttempts: 2, DelayMS: 500},
	}
}

// Load reads and parses the YAML config at path, applying the documented
// defaults for any analysis fields left unset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		Analysis: Analysis{RetryAttempts: defaultRetryAttempts, FallbackToGeneral: defaultFallbackToGeneral},
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Analysis.RetryAttempts <= 0 {
		cfg.Analysis.RetryAttempts = defaultRetryAttempts
	}
	if cfg.Steps == nil {
		cfg.Steps = make(map[string]StepRetry)
	}
	for name, retry := range defaultStepRetries() {
		if _, ok := cfg.Steps[name]; !ok {
			cfg.Steps[name] = retry
		}
	}
	return cfg, nil
}

// ModelFor returns the model settings registered under use, or an empty
// (zero-value) ModelConfig if none was configured.
func (c *Config) ModelFor(use string) provider.ModelConfig {
	settings, ok := c.Models[use]
	if !ok {
		return provider.ModelConfig{}
	}
	return settings.ToModelConfig()
}

// StepRetryFor returns the configured retry budget for a workflow step
// name, falling back to its documented default if the YAML document
// doesn't override it.
func (c *Config) StepRetryFor(name string) StepRetry {
	if retry, ok := c.Steps[name]; ok {
		return retry
	}
	return defaultStepRetries()[name]
}

// Credentials is the set of environment variables that carry upstream
// provider and database secrets.
type Credentials struct {
	CohereAPIKey   string
	ClaudeAPIKey   string
	DeepSeekAPIKey string
	DatabaseURL    string
}

// Paths is the set of environment variables that locate files the
// process reads at startup.
type Paths struct {
	ConfigPath  string
	PromptsPath string
	LogPath     string
}

// CredentialsFromEnv reads the provider/database environment variables.
func CredentialsFromEnv() Credentials {
	return Credentials{
		CohereAPIKey:   os.Getenv("COHERE_API_KEY"),
		ClaudeAPIKey:   os.Getenv("CLAUDE_API_KEY"),
		DeepSeekAPIKey: os.Getenv("DEEPSEEK_API_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
	}
}

// PathsFromEnv reads the location environment variables, applying
// conservative local defaults when unset.
func PathsFromEnv() Paths {
	return Paths{
		ConfigPath:  envOrDefault("CONFIG_PATH", "config.yaml"),
		PromptsPath: envOrDefault("PROMPTS_PATH", "prompts.yaml"),
		LogPath:     os.Getenv("LOG_PATH_API0"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
