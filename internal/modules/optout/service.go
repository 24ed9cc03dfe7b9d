package optout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/likenesshq/core/internal/config"
	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/modules/webhook"
	"github.com/likenesshq/core/internal/pkg/contenthash"
	"github.com/likenesshq/core/internal/pkg/mail"
	"github.com/likenesshq/core/internal/pkg/metrics"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service orchestrates opt-out requests: dispatching notices, recording
// company responses and tracking the request lifecycle.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	mailer     Mailer
	events     EventPublisher
	pacing     time.Duration
	batchLimit int
}

func NewService(db *gorm.DB, log *zap.Logger, mailer Mailer, events EventPublisher, cfg config.DispatchConfig) *Service {
	return &Service{
		db:         db,
		log:        log,
		mailer:     mailer,
		events:     events,
		pacing:     time.Duration(cfg.PacingMS) * time.Millisecond,
		batchLimit: cfg.BatchLimit,
	}
}

// ensureRequest finds or creates the request row for a user/company
// pair. The composite unique index makes racing creates collapse into
// one row, so the upsert is followed by a plain re-fetch.
func (s *Service) ensureRequest(user *models.UserModel, company *models.CompanyModel) (*models.OptOutRequestModel, error) {
	req := models.OptOutRequestModel{
		UserID:      user.ID,
		CompanyID:   company.ID,
		CompanySlug: company.Slug,
		Method:      company.OptOutMethod,
		Status:      models.OptOutNotStarted,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "company_id"}},
		DoNothing: true,
	}).Create(&req).Error
	if err != nil {
		return nil, err
	}

	var out models.OptOutRequestModel
	if err := s.db.Where("user_id = ? AND company_id = ?", user.ID, company.ID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// SendNotice renders and emails the opt-out notice for one company,
// then records the communication and advances the request to "sent".
func (s *Service) SendNotice(ctx context.Context, userID, companySlug string) (*models.OptOutRequestModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	company, err := s.companyBySlug(companySlug)
	if err != nil {
		return nil, err
	}
	return s.sendTo(ctx, &user, company)
}

func (s *Service) companyBySlug(slug string) (*models.CompanyModel, error) {
	var company models.CompanyModel
	if err := s.db.First(&company, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	return &company, nil
}

func (s *Service) sendTo(ctx context.Context, user *models.UserModel, company *models.CompanyModel) (*models.OptOutRequestModel, error) {
	if !company.Active {
		return nil, ErrCompanyNotFound
	}
	if !company.Automatable() {
		return nil, ErrNotAutomatable
	}

	req, err := s.ensureRequest(user, company)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, ErrAlreadySent
	}

	subject, body, err := RenderNotice(user, company)
	if err != nil {
		metrics.NoticesSent.WithLabelValues("failed").Inc()
		return nil, err
	}
	hash := contenthash.Sum(subject, body)

	msgID, err := s.mailer.Send(ctx, mail.Message{
		To:      []string{company.OptOutEmail},
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		metrics.NoticesSent.WithLabelValues("failed").Inc()
		return nil, err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		comm := models.CommunicationModel{
			RequestID:         req.ID,
			UserID:            user.ID,
			Direction:         models.DirectionOutbound,
			Type:              models.CommInitialNotice,
			Subject:           subject,
			Body:              body,
			ContentHash:       hash,
			Recipient:         company.OptOutEmail,
			ProviderMessageID: msgID,
			SentAt:            now,
		}
		if err := tx.Create(&comm).Error; err != nil {
			return err
		}
		return tx.Model(&models.OptOutRequestModel{}).Where("id = ?", req.ID).
			Updates(map[string]interface{}{
				"status":       models.OptOutSent,
				"method":       models.MethodEmail,
				"last_sent_at": &now,
			}).Error
	})
	if err != nil {
		// The mail went out but the audit write failed. Log loudly; the
		// request stays at not_started and a retry will re-send.
		s.log.Error("notice sent but not recorded",
			zap.String("request_id", req.ID),
			zap.String("company", company.Slug),
			zap.Error(err))
		return nil, err
	}

	metrics.NoticesSent.WithLabelValues("sent").Inc()
	s.events.Publish(webhook.EventContributorOptedOut, map[string]interface{}{
		"user_id":      user.ID,
		"company_id":   company.ID,
		"company_slug": company.Slug,
		"request_id":   req.ID,
		"status":       models.OptOutSent,
	})

	return s.getOwned(user.ID, req.ID, false)
}

// SendBatch dispatches notices to every eligible company for the user,
// paced so the mail provider is never burst-flooded. One company's
// failure never aborts the rest.
func (s *Service) SendBatch(ctx context.Context, userID string) (*BatchResult, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	var companies []models.CompanyModel
	if err := s.db.Where("active = ?", true).Order("name ASC").Find(&companies).Error; err != nil {
		return nil, err
	}
	var requests []models.OptOutRequestModel
	if err := s.db.Where("user_id = ?", userID).Find(&requests).Error; err != nil {
		return nil, err
	}

	eligible := eligibleCompanies(companies, requests)
	if len(eligible) > s.batchLimit {
		eligible = eligible[:s.batchLimit]
	}

	limiter := rate.NewLimiter(rate.Every(s.pacing), 1)
	result := runBatch(ctx, eligible, limiter, func(c models.CompanyModel) error {
		_, err := s.sendTo(ctx, &user, &c)
		return err
	})

	s.log.Info("opt-out batch finished",
		zap.String("user_id", userID),
		zap.Int("total", result.Total),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// runBatch drives the paced send loop. Extracted so pacing and failure
// isolation are testable without a database or mailer.
func runBatch(ctx context.Context, companies []models.CompanyModel, limiter *rate.Limiter, send func(models.CompanyModel) error) *BatchResult {
	start := time.Now()
	result := &BatchResult{
		Total: len(companies),
		Items: make([]BatchItem, 0, len(companies)),
	}
	defer func() {
		result.Elapsed = time.Since(start).Round(time.Millisecond).String()
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	for _, company := range companies {
		if err := limiter.Wait(ctx); err != nil {
			// Context cancelled mid-batch; report the remainder as not sent.
			result.Items = append(result.Items, BatchItem{
				CompanyID: company.ID, CompanySlug: company.Slug,
				Error: err.Error(),
			})
			result.Failed++
			continue
		}

		item := BatchItem{CompanyID: company.ID, CompanySlug: company.Slug}
		if err := send(company); err != nil {
			item.Error = err.Error()
			result.Failed++
		} else {
			item.Sent = true
			result.Sent++
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// SendFollowUp re-contacts a company whose notice has gone unanswered.
// Only valid while the request sits at "sent": a reply in either
// direction makes a reminder pointless.
func (s *Service) SendFollowUp(ctx context.Context, userID, requestID string) (*models.OptOutRequestModel, error) {
	req, err := s.getOwned(userID, requestID, false)
	if err != nil {
		return nil, err
	}
	if req.Status != models.OptOutSent {
		return nil, ErrBadTransition
	}

	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	var company models.CompanyModel
	if err := s.db.First(&company, "id = ?", req.CompanyID).Error; err != nil {
		return nil, ErrCompanyNotFound
	}
	if !company.Automatable() {
		return nil, ErrNotAutomatable
	}

	subject, body, err := RenderFollowUp(&user, &company)
	if err != nil {
		metrics.NoticesSent.WithLabelValues("failed").Inc()
		return nil, err
	}

	msgID, err := s.mailer.Send(ctx, mail.Message{
		To:      []string{company.OptOutEmail},
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		metrics.NoticesSent.WithLabelValues("failed").Inc()
		return nil, err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		comm := models.CommunicationModel{
			RequestID:         req.ID,
			UserID:            user.ID,
			Direction:         models.DirectionOutbound,
			Type:              models.CommFollowUp,
			Subject:           subject,
			Body:              body,
			ContentHash:       contenthash.Sum(subject, body),
			Recipient:         company.OptOutEmail,
			ProviderMessageID: msgID,
			SentAt:            now,
		}
		if err := tx.Create(&comm).Error; err != nil {
			return err
		}
		return tx.Model(&models.OptOutRequestModel{}).Where("id = ?", req.ID).
			Update("last_sent_at", &now).Error
	})
	if err != nil {
		s.log.Error("follow-up sent but not recorded",
			zap.String("request_id", req.ID),
			zap.String("company", company.Slug),
			zap.Error(err))
		return nil, err
	}

	metrics.NoticesSent.WithLabelValues("sent").Inc()
	return s.getOwned(userID, requestID, false)
}

// RecordResponse appends an inbound company reply to the audit trail
// and advances the request status when the reply type demands it.
func (s *Service) RecordResponse(userID string, dto *RecordResponseDTO) (*models.OptOutRequestModel, error) {
	req, err := s.getOwned(userID, dto.RequestID, false)
	if err != nil {
		return nil, err
	}

	commType := models.CommunicationType(dto.CommunicationType)
	switch commType {
	case models.CommConfirmation, models.CommDenial, models.CommResponse:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadTransition, dto.CommunicationType)
	}
	if req.Status == models.OptOutNotStarted {
		return nil, ErrBadTransition
	}
	nextStatus, transitions := transitionFor(commType)
	if transitions && req.Status != models.OptOutSent {
		return nil, ErrBadTransition
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		comm := models.CommunicationModel{
			RequestID:   req.ID,
			UserID:      userID,
			Direction:   models.DirectionInbound,
			Type:        commType,
			Subject:     dto.Subject,
			Body:        dto.ResponseText,
			ContentHash: contenthash.Sum(dto.Subject, dto.ResponseText),
			SentAt:      now,
		}
		if err := tx.Create(&comm).Error; err != nil {
			return err
		}
		if !transitions {
			return nil
		}
		updates := map[string]interface{}{"status": nextStatus}
		if nextStatus == models.OptOutConfirmed {
			updates["confirmed_at"] = &now
		}
		return tx.Model(&models.OptOutRequestModel{}).Where("id = ?", req.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if transitions && nextStatus == models.OptOutConfirmed {
		s.events.Publish(webhook.EventContributorConsent, map[string]interface{}{
			"user_id":      userID,
			"company_id":   req.CompanyID,
			"company_slug": req.CompanySlug,
			"request_id":   req.ID,
			"status":       nextStatus,
		})
	}
	return s.getOwned(userID, req.ID, true)
}

// Complete marks an opt-out done through a channel we cannot automate:
// the company's web form or an in-product setting. Addressed by company
// slug, and the request row is created on the fly when the user never
// tracked this company before.
func (s *Service) Complete(userID string, dto *CompleteDTO) (*models.OptOutRequestModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	company, err := s.companyBySlug(dto.CompanySlug)
	if err != nil {
		return nil, err
	}
	if !company.Active {
		return nil, ErrCompanyNotFound
	}

	var status models.OptOutStatus
	switch company.OptOutMethod {
	case models.MethodWebForm:
		status = models.OptOutCompletedWeb
	case models.MethodSettings:
		status = models.OptOutCompletedSettings
	default:
		return nil, fmt.Errorf("%w: %s handles opt-outs by email", ErrNotCompletable, company.Slug)
	}

	req, err := s.ensureRequest(&user, company)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, ErrNotCompletable
	}

	updates := map[string]interface{}{
		"status": status,
		"method": company.OptOutMethod,
	}
	if dto.Notes != "" {
		updates["notes"] = dto.Notes
	}
	if err := s.db.Model(&models.OptOutRequestModel{}).Where("id = ?", req.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	s.events.Publish(webhook.EventContributorOptedOut, map[string]interface{}{
		"user_id":      userID,
		"company_id":   req.CompanyID,
		"company_slug": req.CompanySlug,
		"request_id":   req.ID,
		"status":       status,
	})
	return s.getOwned(userID, req.ID, false)
}

// EnsureForCompany creates (or returns) the tracking row for a company
// the user wants to handle manually.
func (s *Service) EnsureForCompany(userID, companySlug string) (*models.OptOutRequestModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	company, err := s.companyBySlug(companySlug)
	if err != nil {
		return nil, err
	}
	if !company.Active {
		return nil, ErrCompanyNotFound
	}
	return s.ensureRequest(&user, company)
}

// List returns the user's requests, optionally filtered by status.
func (s *Service) List(userID string, q pagination.Query, status string) ([]models.OptOutRequestModel, response.Pagination, error) {
	tx := s.db.Model(&models.OptOutRequestModel{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC")
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var items []models.OptOutRequestModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// Get returns one request with its full communication trail.
func (s *Service) Get(userID, requestID string) (*models.OptOutRequestModel, error) {
	return s.getOwned(userID, requestID, true)
}

func (s *Service) getOwned(userID, requestID string, withComms bool) (*models.OptOutRequestModel, error) {
	tx := s.db.Where("id = ? AND user_id = ?", requestID, userID)
	if withComms {
		tx = tx.Preload("Communications", func(db *gorm.DB) *gorm.DB {
			return db.Order("sent_at ASC")
		})
	}
	var req models.OptOutRequestModel
	if err := tx.First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}
