package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
prompts:
  find_endpoint:
    default_version: v1
    versions:
      v1:
        template: "Sentence: {input_sentence}\nActions: {actions_list}"
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	return path
}

func TestGetDefaultVersion(t *testing.T) {
	reg, err := Load(writeFixture(t))
	require.NoError(t, err)

	tmpl, err := reg.Get(context.Background(), "find_endpoint", "")
	require.NoError(t, err)
	assert.Contains(t, tmpl, "{input_sentence}")
}

func TestGetFallsBackToDefaultOnUnknownVersion(t *testing.T) {
	reg, err := Load(writeFixture(t))
	require.NoError(t, err)

	fallback, err := reg.Get(context.Background(), "find_endpoint", "does-not-exist")
	require.NoError(t, err)

	def, err := reg.Get(context.Background(), "find_endpoint", "")
	require.NoError(t, err)
	assert.Equal(t, def, fallback)
}

func TestGetUnknownPromptErrors(t *testing.T) {
	reg, err := Load(writeFixture(t))
	require.NoError(t, err)

	_, err = reg.Get(context.Background(), "no_such_prompt", "")
	assert.Error(t, err)
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	out := Render("Sentence: {input_sentence}\nActions: {actions_list}", map[string]string{
		"input_sentence": "book a flight",
		"actions_list":   "- create_booking",
	})
	assert.Equal(t, "Sentence: book a flight\nActions: - create_booking", out)
}
