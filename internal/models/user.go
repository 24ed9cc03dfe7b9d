package models

import "time"

// UserRole controls access to the admin surface.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// UserModel is a contributor: the subject on whose behalf opt-out
// notices are dispatched.
type UserModel struct {
	Base
	Email        string   `json:"email" gorm:"uniqueIndex;not null"`
	Name         string   `json:"name"  gorm:"not null"`
	PasswordHash string   `json:"-"     gorm:"not null"`
	Role         UserRole `json:"role"  gorm:"default:user"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`
}

func (UserModel) TableName() string { return "users" }

// UserSession is a revocable login session backing a JWT.
type UserSession struct {
	Base
	UserID    string     `json:"user_id" gorm:"index;not null"`
	IP        string     `json:"ip"`
	UA        string     `json:"ua"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

func (UserSession) TableName() string { return "user_sessions" }
