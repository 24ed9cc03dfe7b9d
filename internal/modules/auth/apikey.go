package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/models"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrBadScope    = errors.New("scopes contains an unknown scope")
	ErrNoScopes    = errors.New("scopes must not be empty")
)

var grantableScopes = map[string]struct{}{
	middleware.ScopeWebhooksManage: {},
	middleware.ScopeScansRead:      {},
}

type CreateKeyDTO struct {
	Name   string   `json:"name"   binding:"required"`
	Scopes []string `json:"scopes" binding:"required"`
}

// createdKey carries the raw token alongside the stored record. The raw
// token is shown exactly once, at creation.
type createdKey struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Token     string   `json:"token"`
	Scopes    []string `json:"scopes"`
	CreatedAt int64    `json:"created"`
}

func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return nil, ErrNoScopes
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		next := strings.ToLower(strings.TrimSpace(scope))
		if next == "" {
			continue
		}
		if _, ok := grantableScopes[next]; !ok {
			return nil, ErrBadScope
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	if len(out) == 0 {
		return nil, ErrNoScopes
	}
	return out, nil
}

func newRawToken() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return "lk_" + hex.EncodeToString(buf)
}

// CreateKey mints a new API key. Only the sha256 digest is stored; the
// raw token in the response cannot be recovered later.
func (s *Service) CreateKey(userID string, dto *CreateKeyDTO) (*createdKey, error) {
	scopes, err := normalizeScopes(dto.Scopes)
	if err != nil {
		return nil, err
	}

	raw := newRawToken()
	key := models.APIKeyModel{
		UserID:    userID,
		Name:      strings.TrimSpace(dto.Name),
		TokenHash: middleware.HashAPIKey(raw),
		Scopes:    scopes,
		Enabled:   true,
	}
	if err := s.db.Create(&key).Error; err != nil {
		return nil, err
	}

	return &createdKey{
		ID:        key.ID,
		Name:      key.Name,
		Token:     raw,
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt.UnixMilli(),
	}, nil
}

func (s *Service) ListKeys(userID string) ([]models.APIKeyModel, error) {
	var keys []models.APIKeyModel
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

func (s *Service) DeleteKey(userID, keyID string) error {
	res := s.db.Where("id = ? AND user_id = ?", keyID, userID).Delete(&models.APIKeyModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// SetKeyEnabled toggles a key without deleting its delivery history.
func (s *Service) SetKeyEnabled(userID, keyID string, enabled bool) error {
	res := s.db.Model(&models.APIKeyModel{}).
		Where("id = ? AND user_id = ?", keyID, userID).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}
