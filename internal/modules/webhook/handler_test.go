package webhook

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// mockRouter mounts the webhook routes behind a stub auth middleware so
// the ownership chain can be exercised end to end against sqlmock.
func mockRouter(t *testing.T, authMW gin.HandlerFunc) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	r := gin.New()
	NewHandler(NewService(db, zap.NewNop(), nil)).RegisterRoutes(r.Group(""), authMW)
	return r, mock
}

func asAPIKey(key *models.APIKeyModel) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, key.UserID)
		c.Set(middleware.ContextKeyAPIKey, key)
	}
}

func TestWebhookRoutesRejectSessionCallers(t *testing.T) {
	asSession := func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, "user-1")
	}
	r, mock := mockRouter(t, asSession)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/webhooks", nil),
		httptest.NewRequest(http.MethodGet, "/webhooks/hook-1", nil),
		httptest.NewRequest(http.MethodDelete, "/webhooks/hook-1", nil),
		httptest.NewRequest(http.MethodPost, "/webhooks/deliveries/dlv-1/redeliver", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", req.Method, req.URL.Path)
	}

	// The guard fires before any query: no hook data is ever read.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookListScopedToCallerKey(t *testing.T) {
	key := &models.APIKeyModel{
		UserID:  "user-b",
		Scopes:  []string{middleware.ScopeWebhooksManage},
		Enabled: true,
	}
	key.ID = "key-b"
	r, mock := mockRouter(t, asAPIKey(key))

	mock.ExpectQuery("SELECT \\* FROM `webhooks` WHERE key_id = \\?").
		WithArgs("key-b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key_id", "payload_url", "enabled"}).
			AddRow("hook-b", "key-b", "https://partner-b.example/hook", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhooks", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hook-b")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookGetOtherPartnersHookIsNotFound(t *testing.T) {
	key := &models.APIKeyModel{
		UserID:  "user-b",
		Scopes:  []string{middleware.ScopeWebhooksManage},
		Enabled: true,
	}
	key.ID = "key-b"
	r, mock := mockRouter(t, asAPIKey(key))

	// hook-a belongs to partner A; the ownership predicate filters it out.
	mock.ExpectQuery("SELECT \\* FROM `webhooks` WHERE .*id = \\? AND key_id = \\?").
		WithArgs("hook-a", "key-b", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhooks/hook-a", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
