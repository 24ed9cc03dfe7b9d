package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/jwt"
	"github.com/likenesshq/core/internal/pkg/response"
	sessionpkg "github.com/likenesshq/core/internal/pkg/session"
	"gorm.io/gorm"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeySID    = "session_id"
	ContextKeyAPIKey = "api_key"
	apiKeyPrefix     = "lk_"
)

// Scopes grantable to API keys.
const (
	ScopeWebhooksManage = "webhooks:manage"
	ScopeScansRead      = "scans:read"
)

// Auth returns a middleware that enforces JWT or API key authentication.
func Auth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, db) {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

// OptionalAuth sets the user ID if a valid token is present, but does not block the request.
func OptionalAuth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, db)
		c.Next()
	}
}

// RequireScope returns a middleware that requires an API key carrying the
// given scope. Session-authenticated users pass, since the browser surface
// is not scope-restricted.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == "" {
			response.Unauthorized(c)
			return
		}
		key := CurrentAPIKey(c)
		if key != nil && !key.HasScope(scope) {
			response.ForbiddenMsg(c, "api key is missing the "+scope+" scope")
			return
		}
		c.Next()
	}
}

// RequireKeyScope returns a middleware that only admits API key callers
// carrying the given scope. Session tokens are rejected: resources behind
// this guard are owned by keys, so a session has nothing to see there.
func RequireKeyScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == "" {
			response.Unauthorized(c)
			return
		}
		key := CurrentAPIKey(c)
		if key == nil {
			response.ForbiddenMsg(c, "this endpoint requires an api key with the "+scope+" scope")
			return
		}
		if !key.HasScope(scope) {
			response.ForbiddenMsg(c, "api key is missing the "+scope+" scope")
			return
		}
		c.Next()
	}
}

// RequireAdmin returns a middleware that restricts a route to admin users.
func RequireAdmin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := CurrentUserID(c)
		if uid == "" {
			response.Unauthorized(c)
			return
		}
		var user models.UserModel
		if err := db.Select("role").First(&user, "id = ?", uid).Error; err != nil {
			response.Forbidden(c)
			return
		}
		if user.Role != models.RoleAdmin {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, db *gorm.DB) bool {
	token := extractToken(c)
	if token == "" {
		return false
	}

	if strings.HasPrefix(token, apiKeyPrefix) {
		key, err := validateAPIKey(db, token)
		if err != nil {
			return false
		}
		c.Set(ContextKeyUserID, key.UserID)
		c.Set(ContextKeyAPIKey, key)
		return true
	}

	claims, err := jwt.Parse(token)
	if err != nil {
		return false
	}
	active, err := sessionpkg.IsActive(db, claims.UserID, claims.SessionID)
	if err != nil || !active {
		return false
	}
	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeySID, claims.SessionID)
	sessionpkg.Touch(db, claims.UserID, claims.SessionID)
	return true
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

// CurrentAPIKey returns the API key used for this request, or nil when the
// request was session-authenticated.
func CurrentAPIKey(c *gin.Context) *models.APIKeyModel {
	v, _ := c.Get(ContextKeyAPIKey)
	key, _ := v.(*models.APIKeyModel)
	return key
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

// HashAPIKey returns the stored digest of a raw API key.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

func validateAPIKey(db *gorm.DB, token string) (*models.APIKeyModel, error) {
	var key models.APIKeyModel
	err := db.Where("token_hash = ? AND enabled = ?", HashAPIKey(token), true).First(&key).Error
	if err != nil {
		return nil, errors.New("api key not found")
	}

	now := time.Now()
	_ = db.Model(&models.APIKeyModel{}).Where("id = ?", key.ID).
		Update("last_used_at", &now).Error
	return &key, nil
}
