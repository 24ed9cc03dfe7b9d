package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "abc", NormalizeToken("  abc  "))
	assert.Equal(t, "abc", NormalizeToken("Bearer abc"))
	assert.Equal(t, "abc", NormalizeToken("bearer abc"))
	assert.Equal(t, "", NormalizeToken("   "))
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey("lk_deadbeef")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashAPIKey("lk_deadbeef"))
	assert.NotEqual(t, a, HashAPIKey("lk_deadbeee"))
}

func TestRequireKeyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(setup func(c *gin.Context)) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/webhooks", nil)
		setup(c)
		RequireKeyScope(ScopeWebhooksManage)(c)
		if !c.IsAborted() {
			c.Status(http.StatusOK)
		}
		return w
	}

	t.Run("anonymous", func(t *testing.T) {
		w := run(func(c *gin.Context) {})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	// A session token is a valid login but not a key: key-owned
	// resources stay invisible to it.
	t.Run("session user", func(t *testing.T) {
		w := run(func(c *gin.Context) {
			c.Set(ContextKeyUserID, "user-1")
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("key without scope", func(t *testing.T) {
		w := run(func(c *gin.Context) {
			c.Set(ContextKeyUserID, "user-1")
			c.Set(ContextKeyAPIKey, &models.APIKeyModel{Scopes: []string{ScopeScansRead}})
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("key with scope", func(t *testing.T) {
		w := run(func(c *gin.Context) {
			c.Set(ContextKeyUserID, "user-1")
			c.Set(ContextKeyAPIKey, &models.APIKeyModel{Scopes: []string{ScopeWebhooksManage}})
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAPIKeyHasScope(t *testing.T) {
	key := models.APIKeyModel{Scopes: []string{ScopeWebhooksManage}}
	assert.True(t, key.HasScope(ScopeWebhooksManage))
	assert.False(t, key.HasScope(ScopeScansRead))

	empty := models.APIKeyModel{}
	assert.False(t, empty.HasScope(ScopeWebhooksManage))
}
