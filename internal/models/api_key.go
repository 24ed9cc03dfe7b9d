package models

import "time"

// APIKeyModel is a partner/platform bearer credential. The raw key is
// shown once at creation; only its SHA-256 is stored.
type APIKeyModel struct {
	Base
	UserID     string     `json:"user_id"    gorm:"index;not null"`
	Name       string     `json:"name"       gorm:"not null"`
	TokenHash  string     `json:"-"          gorm:"uniqueIndex;not null;type:char(64)"`
	Scopes     []string   `json:"scopes"     gorm:"serializer:json"`
	Enabled    bool       `json:"enabled"    gorm:"default:true"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

func (APIKeyModel) TableName() string { return "api_keys" }

// HasScope reports whether the key grants the given scope.
func (k *APIKeyModel) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
