// Package auth covers account registration, session login and the API
// keys partners use against the platform surface.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/likenesshq/core/internal/models"
	webhookmod "github.com/likenesshq/core/internal/modules/webhook"
	"github.com/likenesshq/core/internal/pkg/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken      = errors.New("an account with this email already exists")
	ErrBadCredentials  = errors.New("invalid email or password")
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

type RegisterDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Name     string `json:"name"     binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileDTO struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

// EventPublisher decouples auth from the webhook fan-out.
type EventPublisher interface {
	Publish(event string, data interface{})
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	events EventPublisher
}

func NewService(db *gorm.DB, log *zap.Logger, events EventPublisher) *Service {
	return &Service{db: db, log: log, events: events}
}

const minPasswordLength = 8

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The first account ever created becomes
// the admin, every later one is a regular user.
func (s *Service) Register(dto *RegisterDTO) (*models.UserModel, error) {
	if len(dto.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	email := normalizeEmail(dto.Email)

	var count int64
	if err := s.db.Model(&models.UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := s.db.Model(&models.UserModel{}).Count(&total).Error; err != nil {
		return nil, err
	}
	role := models.RoleUser
	if total == 0 {
		role = models.RoleAdmin
	}

	user := models.UserModel{
		Email:        email,
		Name:         strings.TrimSpace(dto.Name),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}

	s.events.Publish(webhookmod.EventContributorOnboarded, map[string]interface{}{
		"user_id": user.ID,
		"name":    user.Name,
	})
	return &user, nil
}

// Login verifies credentials and issues a session-bound JWT.
func (s *Service) Login(dto *LoginDTO, ip, ua string) (string, *models.UserModel, error) {
	var user models.UserModel
	err := s.db.First(&user, "email = ?", normalizeEmail(dto.Email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrBadCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(dto.Password)) != nil {
		return "", nil, ErrBadCredentials
	}

	token, _, err := session.Issue(s.db, user.ID, ip, ua, session.DefaultTTL)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	_ = s.db.Model(&user).Updates(map[string]interface{}{
		"last_login_at": &now,
		"last_login_ip": ip,
	}).Error

	return token, &user, nil
}

func (s *Service) GetUser(userID string) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes the user's name or password. A password change
// revokes every other session.
func (s *Service) UpdateProfile(userID, sessionID string, dto *UpdateProfileDTO) (*models.UserModel, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.Password != nil {
		if len(*dto.Password) < minPasswordLength {
			return nil, ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*dto.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = string(hash)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	if dto.Password != nil {
		if err := session.RevokeAllExcept(s.db, userID, sessionID); err != nil {
			s.log.Warn("session revocation after password change failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	return user, nil
}

func (s *Service) ListSessions(userID string) ([]models.UserSession, error) {
	return session.ListActive(s.db, userID)
}

func (s *Service) RevokeSession(userID, sessionID string) error {
	err := session.Revoke(s.db, userID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (s *Service) RevokeOtherSessions(userID, keepSessionID string) error {
	return session.RevokeAllExcept(s.db, userID, keepSessionID)
}
