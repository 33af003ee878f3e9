package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bennekrouf/semantic-api0/internal/store"
)

// mergeParameters is exercised directly here; Open/Update/Get require a
// live Postgres connection and are not exercised by any test. The memory
// store's tests cover the same store.Store contract against the in-memory
// implementation.

func TestMergeParametersOverwritesSameName(t *testing.T) {
	existing := []store.ParameterValue{{Name: "to", Value: "old@example.com"}, {Name: "subject", Value: "Hi"}}
	newValues := []store.ParameterValue{{Name: "to", Value: "new@example.com"}}

	merged := mergeParameters(existing, newValues)

	out := make(map[string]string, len(merged))
	for _, p := range merged {
		out[p.Name] = p.Value
	}
	assert.Equal(t, "new@example.com", out["to"])
	assert.Equal(t, "Hi", out["subject"])
	assert.Len(t, merged, 2)
}

func TestMergeParametersAppendsNewName(t *testing.T) {
	existing := []store.ParameterValue{{Name: "to", Value: "a@example.com"}}
	newValues := []store.ParameterValue{{Name: "subject", Value: "Hi"}}

	merged := mergeParameters(existing, newValues)

	assert.Len(t, merged, 2)
	assert.Equal(t, "to", merged[0].Name)
	assert.Equal(t, "subject", merged[1].Name)
}
