// Package bounty lets contributors post rewards for evidence of
// unauthorized likeness use, and admins review the submitted evidence.
package bounty

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/models"
	webhookmod "github.com/likenesshq/core/internal/modules/webhook"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrBountyNotFound     = errors.New("bounty not found")
	ErrBountyClosed       = errors.New("bounty is closed")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyReviewed    = errors.New("submission already reviewed")
	ErrOwnBounty          = errors.New("cannot submit evidence against your own bounty")
	ErrBadEvidenceURL     = errors.New("evidence_url must be a valid http(s) URL")
	ErrBadVerdict         = errors.New("verdict must be approved or rejected")
)

// EventPublisher decouples bounty from the webhook fan-out.
type EventPublisher interface {
	Publish(event string, data interface{})
}

type CreateBountyDTO struct {
	Title       string `json:"title"        binding:"required"`
	Description string `json:"description"`
	RewardCents int    `json:"reward_cents" binding:"required,min=100"`
}

type SubmitEvidenceDTO struct {
	EvidenceURL string `json:"evidence_url" binding:"required"`
	Notes       string `json:"notes"`
}

type ReviewDTO struct {
	Verdict string `json:"verdict" binding:"required"`
}

func validateEvidenceURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrBadEvidenceURL
	}
	return nil
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	events EventPublisher
}

func NewService(db *gorm.DB, log *zap.Logger, events EventPublisher) *Service {
	return &Service{db: db, log: log, events: events}
}

func (s *Service) Create(userID string, dto *CreateBountyDTO) (*models.BountyModel, error) {
	b := models.BountyModel{
		UserID:      userID,
		Title:       strings.TrimSpace(dto.Title),
		Description: dto.Description,
		RewardCents: dto.RewardCents,
		Status:      models.BountyOpen,
	}
	if err := s.db.Create(&b).Error; err != nil {
		return nil, err
	}

	s.events.Publish(webhookmod.EventBountyCreated, map[string]interface{}{
		"bounty_id":    b.ID,
		"title":        b.Title,
		"reward_cents": b.RewardCents,
	})
	return &b, nil
}

func (s *Service) List(q pagination.Query, status string) ([]models.BountyModel, response.Pagination, error) {
	tx := s.db.Model(&models.BountyModel{}).Order("created_at DESC")
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var items []models.BountyModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) Get(id string) (*models.BountyModel, error) {
	var b models.BountyModel
	if err := s.db.First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBountyNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Close closes an open bounty. Only the owner may close it.
func (s *Service) Close(userID, id string) (*models.BountyModel, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrBountyNotFound
	}
	if b.Status == models.BountyClosed {
		return b, nil
	}
	if err := s.db.Model(b).Update("status", models.BountyClosed).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// Submit records a hunter's evidence against an open bounty.
func (s *Service) Submit(userID, bountyID string, dto *SubmitEvidenceDTO) (*models.BountySubmissionModel, error) {
	if err := validateEvidenceURL(dto.EvidenceURL); err != nil {
		return nil, err
	}

	b, err := s.Get(bountyID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BountyOpen {
		return nil, ErrBountyClosed
	}
	if b.UserID == userID {
		return nil, ErrOwnBounty
	}

	sub := models.BountySubmissionModel{
		BountyID:    b.ID,
		UserID:      userID,
		EvidenceURL: strings.TrimSpace(dto.EvidenceURL),
		Notes:       dto.Notes,
		Status:      models.SubmissionPending,
	}
	return &sub, s.db.Create(&sub).Error
}

func (s *Service) ListSubmissions(bountyID string, q pagination.Query) ([]models.BountySubmissionModel, response.Pagination, error) {
	if _, err := s.Get(bountyID); err != nil {
		return nil, response.Pagination{}, err
	}
	tx := s.db.Model(&models.BountySubmissionModel{}).
		Where("bounty_id = ?", bountyID).
		Order("created_at ASC")
	var items []models.BountySubmissionModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// Review records an admin verdict on a pending submission. A verdict is
// final: re-reviewing returns ErrAlreadyReviewed.
func (s *Service) Review(submissionID string, dto *ReviewDTO) (*models.BountySubmissionModel, error) {
	var verdict models.SubmissionStatus
	switch models.SubmissionStatus(strings.TrimSpace(dto.Verdict)) {
	case models.SubmissionApproved:
		verdict = models.SubmissionApproved
	case models.SubmissionRejected:
		verdict = models.SubmissionRejected
	default:
		return nil, ErrBadVerdict
	}

	var sub models.BountySubmissionModel
	if err := s.db.First(&sub, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if sub.Status != models.SubmissionPending {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now()
	updates := map[string]interface{}{"status": verdict, "reviewed_at": now}
	if err := s.db.Model(&sub).Updates(updates).Error; err != nil {
		return nil, err
	}
	sub.Status = verdict
	sub.ReviewedAt = &now

	s.events.Publish(webhookmod.EventBountySubmissionReviewed, map[string]interface{}{
		"bounty_id":     sub.BountyID,
		"submission_id": sub.ID,
		"verdict":       string(verdict),
	})
	return &sub, nil
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/bounties")
	g.GET("", h.list)
	g.GET("/:id", h.get)

	user := g.Group("", authMW)
	user.POST("", h.create)
	user.POST("/:id/close", h.close)
	user.POST("/:id/submissions", h.submit)
	user.GET("/:id/submissions", h.listSubmissions)

	admin := rg.Group("/submissions", authMW, adminMW)
	admin.POST("/:id/review", h.review)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBountyNotFound), errors.Is(err, ErrSubmissionNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrAlreadyReviewed):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrBountyClosed), errors.Is(err, ErrOwnBounty):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, ErrBadEvidenceURL), errors.Is(err, ErrBadVerdict):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q, c.Query("status"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) get(c *gin.Context) {
	b, err := h.svc.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, b)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateBountyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	b, err := h.svc.Create(middleware.CurrentUserID(c), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, b)
}

func (h *Handler) close(c *gin.Context) {
	b, err := h.svc.Close(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, b)
}

func (h *Handler) submit(c *gin.Context) {
	var dto SubmitEvidenceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sub, err := h.svc.Submit(middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, sub)
}

func (h *Handler) listSubmissions(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.ListSubmissions(c.Param("id"), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) review(c *gin.Context) {
	var dto ReviewDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sub, err := h.svc.Review(c.Param("id"), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, sub)
}
