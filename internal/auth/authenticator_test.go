package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSignInAnonymousWithoutToken(t *testing.T) {
	a := NewTokenAuthenticator("", zap.NewNop())

	first := a.SignIn(context.Background())
	second := a.SignIn(context.Background())

	assert.True(t, strings.HasPrefix(first, "anon-"))
	assert.NotEqual(t, first, second, "anonymous identifiers are generated per sign-in")
}

func TestSignInRejectedTokenDegrades(t *testing.T) {
	a := NewTokenAuthenticator("short", zap.NewNop())

	principal := a.SignIn(context.Background())
	assert.True(t, strings.HasPrefix(principal, "auth-failed-"))
}

func TestSignInTokenYieldsStablePrincipal(t *testing.T) {
	a := NewTokenAuthenticator("a-long-enough-token", zap.NewNop())
	b := NewTokenAuthenticator("a-long-enough-token", zap.NewNop())

	first := a.SignIn(context.Background())
	assert.True(t, strings.HasPrefix(first, "token-"))
	assert.Equal(t, first, b.SignIn(context.Background()), "same token, same principal across restarts")

	other := NewTokenAuthenticator("a-different-long-token", zap.NewNop())
	assert.NotEqual(t, first, other.SignIn(context.Background()))
}
