package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/auth"
)

type namedProvider string

func (n namedProvider) Name() string                       { return string(n) }
func (n namedProvider) AuthCodeURL(state, _ string) string { return "https://idp/" + string(n) + "?state=" + state }
func (n namedProvider) ExchangeCode(context.Context, string, string) (*auth.Claims, error) {
	return &auth.Claims{Provider: string(n)}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(namedProvider("keycloak"), nil, namedProvider("google"))

	assert.Equal(t, []string{"google", "keycloak"}, r.Names())

	p, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	_, err = r.Get("github")
	assert.Error(t, err)
}
