package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
models:
  workflow:
    model: claude-3-5-sonnet
    temperature: 0.2
    max_tokens: 1024
server:
  address: "0.0.0.0"
  port: 8080
endpoint_client:
  default_address: "catalog:50051"
analysis:
  retry_attempts: 5
  fallback_to_general: false
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	cfg, err := Load(writeFixture(t, fixture))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "catalog:50051", cfg.EndpointClient.DefaultAddress)
	assert.Equal(t, 5, cfg.Analysis.RetryAttempts)
	assert.False(t, cfg.Analysis.FallbackToGeneral)

	mc := cfg.ModelFor("workflow")
	assert.Equal(t, "claude-3-5-sonnet", mc.Model)
	assert.Equal(t, 1024, mc.MaxTokens)
}

func TestLoadAppliesDefaultsWhenAnalysisSectionOmitted(t *testing.T) {
	cfg, err := Load(writeFixture(t, `
server:
  address: "0.0.0.0"
  port: 8080
endpoint_client:
  default_address: "catalog:50051"
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Analysis.RetryAttempts)
	assert.True(t, cfg.Analysis.FallbackToGeneral)
}

func TestModelForUnknownUseReturnsZeroValue(t *testing.T) {
	cfg, err := Load(writeFixture(t, fixture))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.ModelFor("unknown").Model)
}

func TestStepRetryForAppliesDefaultsWhenStepsSectionOmitted(t *testing.T) {
	cfg, err := Load(writeFixture(t, fixture))
	require.NoError(t, err)

	retry := cfg.StepRetryFor("endpoint_matching")
	assert.Equal(t, 2, retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, retry.Delay())

	retry = cfg.StepRetryFor("path_parameter_extraction")
	assert.Equal(t, 1, retry.MaxAttempts)
	assert.Equal(t, time.Duration(0), retry.Delay())
}

func TestStepRetryForHonorsYAMLOverride(t *testing.T) {
	cfg, err := Load(writeFixture(t, fixture+`
steps:
  endpoint_matching:
    max_attempts: 5
    delay_ms: 250
`))
	require.NoError(t, err)

	retry := cfg.StepRetryFor("endpoint_matching")
	assert.Equal(t, 5, retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, retry.Delay())

	// Untouched steps keep their defaults.
	retry = cfg.StepRetryFor("json_generation")
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.Equal(t, time.Second, retry.Delay())
}
