package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
)

func TestEssentialPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/users/{id}/posts/{postId}", "/users/posts"},
		{"/health", "/health"},
		{"/{a}/{b}", "/"},
		{"", "/"},
		{"/", "/"},
	}
	for _, tc := range cases {
		got := EssentialPath(tc.path)
		assert.Equal(t, tc.want, got, tc.path)
		// idempotent
		assert.Equal(t, got, EssentialPath(got), tc.path)
	}
}

func TestEndpointDedupe(t *testing.T) {
	e := Endpoint{Parameters: []Parameter{
		{Name: "to", Description: "first"},
		{Name: "to", Description: "second"},
		{Name: "subject"},
	}}
	deduped := e.Dedupe()
	require.Len(t, deduped.Parameters, 2)
	assert.Equal(t, "first", deduped.Parameters[0].Description)
}

type fakeSource struct {
	groups []Group
	err    error
}

func (f fakeSource) Stream(context.Context, string, string) ([]Group, error) {
	return f.groups, f.err
}
func (f fakeSource) Health(context.Context, string) error { return f.err }

func TestFetchFlattensAndEnriches(t *testing.T) {
	src := fakeSource{groups: []Group{{
		ID: "g1", Name: "Group One",
		Endpoints: []RawEndpoint{{ID: "e1", Path: "/a/{id}"}},
	}}}
	c := New(src)
	eps, err := c.Fetch(context.Background(), "addr", "a@b.com")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "g1", eps[0].APIGroupID)
	assert.Equal(t, "/a", eps[0].EssentialPath)
}

func TestFetchNoEndpointsIsNotFound(t *testing.T) {
	c := New(fakeSource{})
	_, err := c.Fetch(context.Background(), "addr", "a@b.com")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.NotFound))
}
