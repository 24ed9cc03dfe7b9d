package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages webhook registrations and fans events out to the
// dispatcher. It satisfies the optout module's EventPublisher.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	dispatcher *Dispatcher
}

func NewService(db *gorm.DB, log *zap.Logger, dispatcher *Dispatcher) *Service {
	return &Service{db: db, log: log, dispatcher: dispatcher}
}

// Events returns the subscribable event names.
func Events() []string {
	out := make([]string, len(eventEnum))
	copy(out, eventEnum)
	return out
}

// List returns the hooks owned by the given API key. Ownership is never
// optional: one partner must not see another partner's endpoints.
func (s *Service) List(ownerKeyID string) ([]models.WebhookModel, error) {
	var items []models.WebhookModel
	err := s.db.Where("key_id = ?", ownerKeyID).Order("created_at DESC").Find(&items).Error
	return items, err
}

// GetByID returns the hook only when the given API key owns it. A hook
// belonging to another key reads as not found.
func (s *Service) GetByID(id, ownerKeyID string) (*models.WebhookModel, error) {
	var w models.WebhookModel
	if err := s.db.Where("id = ? AND key_id = ?", id, ownerKeyID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// getHook loads a hook without an ownership filter, for internal use
// after ownership has already been established through the delivery.
func (s *Service) getHook(id string) (*models.WebhookModel, error) {
	var w models.WebhookModel
	if err := s.db.First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (s *Service) Create(ownerKeyID string, dto *CreateWebhookDTO) (*models.WebhookModel, error) {
	if err := validatePayloadURL(dto.PayloadURL); err != nil {
		return nil, err
	}
	events, err := normalizeEvents(dto.Events)
	if err != nil {
		return nil, err
	}

	secret := strings.TrimSpace(dto.Secret)
	if secret == "" {
		buf := make([]byte, 20)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
	} else if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}

	w := models.WebhookModel{
		KeyID:      ownerKeyID,
		PayloadURL: strings.TrimSpace(dto.PayloadURL),
		Events:     events,
		Secret:     secret,
		Enabled:    true,
	}
	if dto.Enabled != nil {
		w.Enabled = *dto.Enabled
	}
	return &w, s.db.Create(&w).Error
}

func (s *Service) Update(id, ownerKeyID string, dto *UpdateWebhookDTO) (*models.WebhookModel, error) {
	w, err := s.GetByID(id, ownerKeyID)
	if err != nil || w == nil {
		return w, err
	}

	updates := map[string]interface{}{}
	if dto.PayloadURL != nil {
		if err := validatePayloadURL(*dto.PayloadURL); err != nil {
			return nil, err
		}
		updates["payload_url"] = strings.TrimSpace(*dto.PayloadURL)
	}
	if dto.Events != nil {
		events, err := normalizeEvents(dto.Events)
		if err != nil {
			return nil, err
		}
		updates["events"] = events
	}
	if dto.Secret != nil {
		secret := strings.TrimSpace(*dto.Secret)
		if len(secret) < minSecretLength {
			return nil, ErrSecretTooShort
		}
		updates["secret"] = secret
	}
	if dto.Enabled != nil {
		updates["enabled"] = *dto.Enabled
	}
	if len(updates) == 0 {
		return w, nil
	}
	if err := s.db.Model(w).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(id, ownerKeyID)
}

func (s *Service) Delete(id, ownerKeyID string) error {
	w, err := s.GetByID(id, ownerKeyID)
	if err != nil {
		return err
	}
	if w == nil {
		return ErrNotFound
	}
	return s.db.Delete(&models.WebhookModel{}, "id = ?", w.ID).Error
}

// eventEnvelope is the wire format posted to endpoints.
type eventEnvelope struct {
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Publish records one pending delivery per subscribed hook and nudges
// the dispatcher. A hook that cannot be reached never blocks the caller.
func (s *Service) Publish(event string, data interface{}) {
	var hooks []models.WebhookModel
	if err := s.db.Where("enabled = ?", true).Find(&hooks).Error; err != nil {
		s.log.Error("webhook fanout query failed", zap.Error(err))
		return
	}

	body, err := json.Marshal(eventEnvelope{
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		s.log.Error("webhook payload marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	now := time.Now()
	for _, hook := range hooks {
		if !containsEvent(hook.Events, event) {
			continue
		}
		delivery := models.WebhookDeliveryModel{
			HookID:        hook.ID,
			Event:         event,
			Payload:       string(body),
			Status:        models.DeliveryPending,
			NextAttemptAt: &now,
		}
		if err := s.db.Create(&delivery).Error; err != nil {
			s.log.Error("webhook delivery create failed",
				zap.String("hook_id", hook.ID), zap.String("event", event), zap.Error(err))
			continue
		}
		s.dispatcher.Enqueue(delivery.ID)
	}
}

// ListDeliveries returns the delivery log for one hook, newest first.
func (s *Service) ListDeliveries(q pagination.Query, hookID, ownerKeyID string) ([]models.WebhookDeliveryModel, response.Pagination, error) {
	hook, err := s.GetByID(hookID, ownerKeyID)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	if hook == nil {
		return nil, response.Pagination{}, ErrNotFound
	}

	tx := s.db.Model(&models.WebhookDeliveryModel{}).
		Where("hook_id = ?", hook.ID).
		Order("created_at DESC")
	var items []models.WebhookDeliveryModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// GetDelivery returns a delivery only when the caller's key owns the
// hook it belongs to.
func (s *Service) GetDelivery(id, ownerKeyID string) (*models.WebhookDeliveryModel, error) {
	var d models.WebhookDeliveryModel
	if err := s.db.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	hook, err := s.GetByID(d.HookID, ownerKeyID)
	if err != nil {
		return nil, err
	}
	if hook == nil {
		return nil, nil
	}
	return &d, nil
}

// Redeliver resets a delivery and queues it for an immediate attempt.
// The attempt counter restarts so a manual retry gets the full backoff
// schedule again.
func (s *Service) Redeliver(ctx context.Context, id, ownerKeyID string) error {
	d, err := s.GetDelivery(id, ownerKeyID)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrNotFound
	}
	hook, err := s.getHook(d.HookID)
	if err != nil {
		return err
	}
	if hook == nil {
		return ErrNotFound
	}
	if !hook.Enabled {
		return ErrHookDisabled
	}

	now := time.Now()
	err = s.db.Model(&models.WebhookDeliveryModel{}).Where("id = ?", d.ID).
		Updates(map[string]interface{}{
			"status":          models.DeliveryPending,
			"attempts":        0,
			"next_attempt_at": &now,
			"last_error":      "",
		}).Error
	if err != nil {
		return err
	}
	s.dispatcher.Enqueue(d.ID)
	return nil
}
