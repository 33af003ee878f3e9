package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ kind Kind }

func (f fakeClient) Kind() Kind { return f.kind }
func (f fakeClient) Generate(context.Context, string, ModelConfig) (Completion, error) {
	return Completion{Content: "ok"}, nil
}

func TestGatewaySelectUnregisteredKind(t *testing.T) {
	gw := NewGateway(Credentials{})
	_, err := gw.Select(Claude)
	assert.Error(t, err)
}

func TestGatewaySelectBuildsFromFactory(t *testing.T) {
	gw := NewGateway(Credentials{ClaudeAPIKey: "key"})
	gw.Register(Claude, func(c Credentials) (Client, error) {
		return fakeClient{kind: Claude}, nil
	})

	client, err := gw.Select(Claude)
	require.NoError(t, err)
	assert.Equal(t, Claude, client.Kind())
}
