// Package company maintains the registry of AI companies that accept
// likeness opt-out requests.
package company

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type CreateCompanyDTO struct {
	Slug         string `json:"slug"           binding:"required"`
	Name         string `json:"name"           binding:"required"`
	OptOutMethod string `json:"opt_out_method" binding:"required"`
	OptOutEmail  string `json:"opt_out_email"`
	PolicyURL    string `json:"policy_url"`
}

type UpdateCompanyDTO struct {
	Name         *string `json:"name"`
	OptOutMethod *string `json:"opt_out_method"`
	OptOutEmail  *string `json:"opt_out_email"`
	PolicyURL    *string `json:"policy_url"`
	Active       *bool   `json:"active"`
}

var (
	ErrBadSlug      = errors.New("slug must be lowercase letters, digits and hyphens")
	ErrBadMethod    = errors.New("opt_out_method must be email, web_form or settings")
	ErrEmailMissing = errors.New("opt_out_email is required when opt_out_method is email")
	ErrSlugTaken    = errors.New("a company with this slug already exists")
)

func parseMethod(raw string) (models.OptOutMethod, error) {
	switch models.OptOutMethod(strings.TrimSpace(raw)) {
	case models.MethodEmail:
		return models.MethodEmail, nil
	case models.MethodWebForm:
		return models.MethodWebForm, nil
	case models.MethodSettings:
		return models.MethodSettings, nil
	default:
		return "", ErrBadMethod
	}
}

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) List(q pagination.Query, includeInactive bool) ([]models.CompanyModel, response.Pagination, error) {
	tx := s.db.Model(&models.CompanyModel{}).Order("name ASC")
	if !includeInactive {
		tx = tx.Where("active = ?", true)
	}
	var items []models.CompanyModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetBySlug(slug string) (*models.CompanyModel, error) {
	var c models.CompanyModel
	if err := s.db.First(&c, "slug = ?", strings.TrimSpace(slug)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Service) Create(dto *CreateCompanyDTO) (*models.CompanyModel, error) {
	slug := strings.ToLower(strings.TrimSpace(dto.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, ErrBadSlug
	}
	method, err := parseMethod(dto.OptOutMethod)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(dto.OptOutEmail)
	if method == models.MethodEmail && email == "" {
		return nil, ErrEmailMissing
	}

	existing, err := s.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	c := models.CompanyModel{
		Slug:         slug,
		Name:         strings.TrimSpace(dto.Name),
		OptOutMethod: method,
		OptOutEmail:  email,
		PolicyURL:    strings.TrimSpace(dto.PolicyURL),
		Active:       true,
	}
	return &c, s.db.Create(&c).Error
}

func (s *Service) Update(id string, dto *UpdateCompanyDTO) (*models.CompanyModel, error) {
	var c models.CompanyModel
	if err := s.db.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.OptOutMethod != nil {
		method, err := parseMethod(*dto.OptOutMethod)
		if err != nil {
			return nil, err
		}
		updates["opt_out_method"] = method
	}
	if dto.OptOutEmail != nil {
		updates["opt_out_email"] = strings.TrimSpace(*dto.OptOutEmail)
	}
	if dto.PolicyURL != nil {
		updates["policy_url"] = strings.TrimSpace(*dto.PolicyURL)
	}
	if dto.Active != nil {
		updates["active"] = *dto.Active
	}
	if len(updates) == 0 {
		return &c, nil
	}
	if err := s.db.Model(&c).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete soft-deletes a company. Existing opt-out requests keep their
// audit trail; the company just stops appearing in listings and batches.
func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.CompanyModel{}, "id = ?", id).Error
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the public listing plus the admin-only writes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/companies")
	g.GET("", h.list)
	g.GET("/:slug", h.get)

	admin := g.Group("", authMW, adminMW)
	admin.POST("", h.create)
	admin.PATCH("/:slug", h.update)
	admin.DELETE("/:slug", h.remove)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q, c.Query("include_inactive") == "true")
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) get(c *gin.Context) {
	company, err := h.svc.GetBySlug(c.Param("slug"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if company == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, company)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateCompanyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	company, err := h.svc.Create(&dto)
	if err != nil {
		switch {
		case errors.Is(err, ErrSlugTaken):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrBadSlug), errors.Is(err, ErrBadMethod), errors.Is(err, ErrEmailMissing):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, company)
}

func (h *Handler) remove(c *gin.Context) {
	existing, err := h.svc.GetBySlug(c.Param("slug"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if existing == nil {
		response.NotFound(c)
		return
	}
	if err := h.svc.Delete(existing.ID); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateCompanyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	existing, err := h.svc.GetBySlug(c.Param("slug"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if existing == nil {
		response.NotFound(c)
		return
	}
	company, err := h.svc.Update(existing.ID, &dto)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadMethod):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, company)
}
