package auth

import (
	"strings"
	"testing"

	"github.com/likenesshq/core/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeScopes(t *testing.T) {
	got, err := normalizeScopes([]string{" Webhooks:Manage ", "scans:read", "webhooks:manage"})
	require.NoError(t, err)
	assert.Equal(t, []string{middleware.ScopeWebhooksManage, middleware.ScopeScansRead}, got)

	_, err = normalizeScopes([]string{"admin:everything"})
	assert.ErrorIs(t, err, ErrBadScope)

	_, err = normalizeScopes(nil)
	assert.ErrorIs(t, err, ErrNoScopes)

	_, err = normalizeScopes([]string{"", "  "})
	assert.ErrorIs(t, err, ErrNoScopes)
}

func TestNewRawToken(t *testing.T) {
	a := newRawToken()
	b := newRawToken()

	assert.True(t, strings.HasPrefix(a, "lk_"))
	assert.Len(t, a, 3+48)
	assert.NotEqual(t, a, b)

	// Only the digest is ever stored; it must be stable for lookup.
	assert.Equal(t, middleware.HashAPIKey(a), middleware.HashAPIKey(a))
	assert.NotEqual(t, middleware.HashAPIKey(a), middleware.HashAPIKey(b))
}
