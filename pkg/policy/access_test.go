package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/domain"
)

const allowRule = `package modelgate

import rego.v1

default allow := false

allow if {
	input.subject != ""
	not restricted_model
}

restricted_model if {
	input.model == "openai/gpt-4"
	input.subject != "admin"
}
`

func TestNewGateDisabledWithoutModules(t *testing.T) {
	gate, err := NewGate(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Nil(t, gate)

	// A nil gate permits everything.
	require.NoError(t, gate.Authorize(context.Background(), Input{Subject: "anyone", Model: "any/model"}))
}

func TestNewGateRejectsBadRego(t *testing.T) {
	_, err := NewGate(context.Background(), "", map[string]string{
		"bad.rego": "this is not rego",
	})
	require.Error(t, err)
}

func TestGateAuthorize(t *testing.T) {
	gate, err := NewGate(context.Background(), "modelgate/allow", map[string]string{
		"access.rego": allowRule,
	})
	require.NoError(t, err)
	require.NotNil(t, gate)

	t.Run("allows permitted model", func(t *testing.T) {
		err := gate.Authorize(context.Background(), Input{
			Subject: "alice", Model: "openai/gpt-3.5-turbo", Path: "/v1/ask",
		})
		require.NoError(t, err)
	})

	t.Run("denies restricted model", func(t *testing.T) {
		err := gate.Authorize(context.Background(), Input{
			Subject: "alice", Model: "openai/gpt-4", Path: "/v1/ask",
		})
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("admin bypasses restriction", func(t *testing.T) {
		err := gate.Authorize(context.Background(), Input{
			Subject: "admin", Model: "openai/gpt-4", Path: "/v1/ask",
		})
		require.NoError(t, err)
	})

	t.Run("empty subject denied", func(t *testing.T) {
		err := gate.Authorize(context.Background(), Input{Model: "openai/gpt-3.5-turbo"})
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})
}
